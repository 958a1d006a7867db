// Package vault is the session facade consumed by the shell. A Session wraps
// one open store and exposes the operations the CLI needs without ever
// handing out raw key material.
package vault

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/org/otpvault/internal/otp"
	"github.com/org/otpvault/internal/provider"
	"github.com/org/otpvault/internal/store"
	"github.com/org/otpvault/pkg/models"
)

// ErrNoMatch is returned when an account search finds nothing.
var ErrNoMatch = errors.New("no matching account")

// Session is one open store. It is not safe for concurrent use; the shell is
// single threaded and counter advancement must stay serialized per account.
type Session struct {
	store *store.Store
}

// Open unlocks an existing store.
func Open(path string, passphrase []byte) (*Session, error) {
	st, err := store.Open(path, passphrase)
	if err != nil {
		return nil, err
	}
	return &Session{store: st}, nil
}

// Create prepares a new store and writes its first, empty state to disk.
func Create(path string, passphrase []byte) (*Session, error) {
	st, err := store.Create(path, passphrase)
	if err != nil {
		return nil, err
	}
	if err := st.Save(); err != nil {
		st.Close()
		return nil, err
	}
	return &Session{store: st}, nil
}

// ListAccounts returns summaries of all accounts in store order.
func (s *Session) ListAccounts() []models.Summary {
	accounts := s.store.Accounts()
	out := make([]models.Summary, len(accounts))
	for i, acc := range accounts {
		out[i] = acc.Summarize()
	}
	return out
}

// CurrentCode generates the code for one account at the given moment. For
// period-based accounts it also reports how long the code stays valid; for
// HOTP the remaining validity is zero and the counter is NOT advanced.
func (s *Session) CurrentCode(id string, now time.Time) (code string, remaining uint64, err error) {
	acc, err := s.store.Account(id)
	if err != nil {
		return "", 0, err
	}
	code, err = otp.Generate(acc, now)
	if err != nil {
		return "", 0, err
	}
	if acc.Kind != models.KindHOTP {
		remaining = otp.RemainingValidity(acc.Period, now)
	}
	return code, remaining, nil
}

// AdvanceCounter consumes one HOTP code. The caller must Save before treating
// the code as used.
func (s *Session) AdvanceCounter(id string) error {
	_, err := s.store.AdvanceCounter(id)
	return err
}

// ConsumeCode generates the code for an HOTP account, advances its counter
// and persists the new counter before returning. The code only reaches the
// caller once its consumption is on disk, so a crash can waste a code but
// never replay one.
func (s *Session) ConsumeCode(id string, now time.Time) (string, error) {
	code, _, err := s.CurrentCode(id, now)
	if err != nil {
		return "", err
	}
	if _, err := s.store.AdvanceCounter(id); err != nil {
		return "", err
	}
	if err := s.store.Save(); err != nil {
		return "", err
	}
	return code, nil
}

// Save persists the current state.
func (s *Session) Save() error {
	return s.store.Save()
}

// AddURI parses an otpauth:// URI, assigns a fresh id and inserts the result.
func (s *Session) AddURI(raw string) (models.Summary, error) {
	acc, err := otp.ParseURI(raw)
	if err != nil {
		return models.Summary{}, err
	}
	acc.ID = uuid.NewString()
	if err := s.store.Insert(acc); err != nil {
		return models.Summary{}, err
	}
	return acc.Summarize(), nil
}

// Remove deletes an account by id.
func (s *Session) Remove(id string) error {
	return s.store.Remove(id)
}

// Account returns the full account for URI formatting. The secret stays owned
// by the store.
func (s *Session) Account(id string) (*models.Account, error) {
	return s.store.Account(id)
}

// Find locates accounts whose issuer or label contains the query, case
// insensitively. An optional label narrows the match further.
func (s *Session) Find(issuer, label string) ([]models.Summary, error) {
	var out []models.Summary
	for _, acc := range s.store.Accounts() {
		if !strings.Contains(strings.ToLower(acc.Issuer), strings.ToLower(issuer)) {
			continue
		}
		if label != "" && !strings.Contains(strings.ToLower(acc.Label), strings.ToLower(label)) {
			continue
		}
		out = append(out, acc.Summarize())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, issuer)
	}
	return out, nil
}

// Import decodes a provider backup into a bundle. The bundle is not persisted
// until MergeAndSave.
func (s *Session) Import(providerID string, data, passphrase []byte) (*provider.Bundle, error) {
	dec, err := provider.Get(providerID)
	if err != nil {
		return nil, err
	}
	return dec.Decode(data, passphrase)
}

// MergeAndSave moves the bundle's accounts into the store under fresh ids and
// writes the result to disk. Ownership of the secrets transfers to the store;
// the bundle is left empty.
func (s *Session) MergeAndSave(bundle *provider.Bundle) (int, error) {
	inserted := 0
	for _, acc := range bundle.Accounts {
		acc.ID = uuid.NewString()
		if err := s.store.Insert(acc); err != nil {
			return inserted, fmt.Errorf("inserting %q: %w", acc.DisplayName(), err)
		}
		inserted++
	}
	bundle.Accounts = nil
	if err := s.store.Save(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// Export renders all accounts in a provider's backup format, encrypted when a
// passphrase is given.
func (s *Session) Export(providerID string, passphrase []byte) ([]byte, string, error) {
	dec, err := provider.Get(providerID)
	if err != nil {
		return nil, "", err
	}
	data, err := dec.Encode(s.store.Accounts(), passphrase)
	if err != nil {
		return nil, "", err
	}
	return data, dec.ExportName(len(passphrase) > 0), nil
}

// Path returns the open store's file location.
func (s *Session) Path() string {
	return s.store.Path()
}

// Close wipes the master key and account secrets.
func (s *Session) Close() {
	s.store.Close()
}
