// Package store owns the encrypted on-disk account database. A store is a
// single local file sealed under a key derived from the master passphrase.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/org/otpvault/internal/crypto"
	"github.com/org/otpvault/pkg/models"
)

// ErrAuthenticationFailed covers both a wrong passphrase and tampered
// ciphertext. The two are indistinguishable to avoid oracle leaks.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrCorrupt is returned when the container framing itself is malformed.
var ErrCorrupt = errors.New("store file is corrupt")

// ErrUnknownVersion is returned for container versions this build does not
// understand. No best-effort parse is attempted.
var ErrUnknownVersion = errors.New("unknown store version")

// ErrDuplicateID is returned when inserting an account whose id already exists.
var ErrDuplicateID = errors.New("duplicate account id")

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("account not found")

// ErrClosed is returned when operating on a closed store.
var ErrClosed = errors.New("store is closed")

// payload is the plaintext document inside the sealed blob.
type payload struct {
	Version  int               `json:"version"`
	Accounts []*models.Account `json:"accounts"`
}

const payloadVersion = 1

// Store is an open account database. The master key lives in memory for the
// lifetime of the store and is wiped on Close.
type Store struct {
	mu       sync.Mutex
	path     string
	key      []byte
	salt     []byte
	params   crypto.KDFParams
	accounts []*models.Account
	closed   bool
}

// Create prepares a new, empty store at path. Nothing is written until the
// first Save. Creating over an existing file is rejected.
func Create(path string, passphrase []byte) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("store already exists at %s", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking store path: %w", err)
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		key:    crypto.DeriveKey(passphrase, salt, crypto.DefaultKDFParams),
		salt:   salt,
		params: crypto.DefaultKDFParams,
	}, nil
}

// Open reads and decrypts the store at path. A failed open never produces an
// open store: the derived key is wiped before returning an error.
func Open(path string, passphrase []byte) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}

	h, blob, err := decodeContainer(data)
	if err != nil {
		return nil, err
	}

	key := crypto.DeriveKey(passphrase, h.salt, h.params)
	plaintext, err := crypto.Open(blob, key)
	if err != nil {
		crypto.Zero(key)
		return nil, ErrAuthenticationFailed
	}
	defer crypto.Zero(plaintext)

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		crypto.Zero(key)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if p.Version != payloadVersion {
		crypto.Zero(key)
		return nil, fmt.Errorf("%w: payload version %d", ErrUnknownVersion, p.Version)
	}

	salt := make([]byte, len(h.salt))
	copy(salt, h.salt)

	return &Store{
		path:     path,
		key:      key,
		salt:     salt,
		params:   h.params,
		accounts: p.Accounts,
	}, nil
}

// Save serializes, seals and atomically writes the current in-memory state.
// The previous file is replaced only after the new one is durably on disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	plaintext, err := json.Marshal(payload{Version: payloadVersion, Accounts: s.accounts})
	if err != nil {
		return fmt.Errorf("encoding accounts: %w", err)
	}
	defer crypto.Zero(plaintext)

	blob, err := crypto.Seal(plaintext, s.key)
	if err != nil {
		return err
	}

	data := encodeContainer(header{version: FormatVersion, params: s.params, salt: s.salt}, blob)
	return atomicWrite(s.path, data)
}

// atomicWrite writes data to a temp file in the target directory and renames
// it over path once the contents are flushed.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing store: %w", err)
	}
	return nil
}

// Insert adds an account, enforcing id uniqueness.
func (s *Store) Insert(acc *models.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, existing := range s.accounts {
		if existing.ID == acc.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, acc.ID)
		}
	}
	s.accounts = append(s.accounts, acc)
	return nil
}

// Remove deletes the account with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i, acc := range s.accounts {
		if acc.ID == id {
			acc.Wipe()
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Accounts returns the ordered account list. Callers treat the accounts as
// read-only; mutation goes through AdvanceCounter.
func (s *Store) Accounts() []*models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Account looks up a single account by id.
func (s *Store) Account(id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	for _, acc := range s.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// AdvanceCounter increments an HOTP account's counter by exactly one. Callers
// must Save before treating the newly generated code as consumed.
func (s *Store) AdvanceCounter(id string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	for _, acc := range s.accounts {
		if acc.ID == id {
			if acc.Kind != models.KindHOTP {
				return 0, fmt.Errorf("account %s is not counter based", id)
			}
			acc.Counter++
			return acc.Counter, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ChangePassphrase rotates the salt and re-derives the master key under the
// current default cost parameters. Takes effect on the next Save.
func (s *Store) ChangePassphrase(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	crypto.Zero(s.key)
	s.salt = salt
	s.params = crypto.DefaultKDFParams
	s.key = crypto.DeriveKey(passphrase, salt, s.params)
	return nil
}

// Path returns the location of the store file.
func (s *Store) Path() string {
	return s.path
}

// Close wipes the master key and all account secrets. The store cannot be
// used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	crypto.Zero(s.key)
	s.key = nil
	for _, acc := range s.accounts {
		acc.Wipe()
	}
	s.accounts = nil
	s.closed = true
}
