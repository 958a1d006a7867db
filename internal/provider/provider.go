// Package provider implements import and export of account databases in the
// backup formats of third-party OTP applications. Every provider defines its
// own envelope encryption and record layout; decoders are selected by an
// explicit identifier, never by sniffing across providers.
package provider

import (
	"errors"
	"fmt"
	"sort"

	"github.com/org/otpvault/pkg/models"
)

// ErrWrongPassword is returned when the envelope format was recognized but
// could not be opened with the given passphrase.
var ErrWrongPassword = errors.New("wrong import password")

// ErrUnsupportedFormat is returned when the file does not match the targeted
// provider's expected structure.
var ErrUnsupportedFormat = errors.New("unsupported import format")

// ErrCorrupt is returned when the envelope is recognized but its contents are
// malformed beyond individual entries.
var ErrCorrupt = errors.New("corrupt import file")

// ErrUnknownProvider is returned for identifiers outside the registry.
var ErrUnknownProvider = errors.New("unknown provider")

// Bundle is the decoded result of one provider file. It only exists during an
// import operation and is discarded once merged into the store.
type Bundle struct {
	Provider string
	Accounts []*models.Account
	// Warnings records entries that were skipped inside an otherwise valid
	// file. They never contain secret material.
	Warnings []string
}

func (b *Bundle) warnf(format string, args ...any) {
	b.Warnings = append(b.Warnings, fmt.Sprintf(format, args...))
}

// Wipe erases the secrets of all bundled accounts. Called when a bundle is
// dropped without being merged.
func (b *Bundle) Wipe() {
	for _, acc := range b.Accounts {
		acc.Wipe()
	}
	b.Accounts = nil
}

// Decoder converts between one provider's backup format and accounts.
type Decoder interface {
	// ID is the identifier used to select this decoder.
	ID() string
	// Decode authenticates, decrypts and parses a backup file. A nil
	// passphrase means the file is expected to be unencrypted where the
	// format allows it.
	Decode(data []byte, passphrase []byte) (*Bundle, error)
	// Encode produces a backup file the provider's own application can read
	// back, encrypted when a passphrase is given.
	Encode(accounts []*models.Account, passphrase []byte) ([]byte, error)
	// ExportName suggests a file name for exports.
	ExportName(encrypted bool) string
}

var decoders = map[string]Decoder{
	"aegis":   aegisDecoder{},
	"andotp":  andotpDecoder{},
	"authpro": authproDecoder{},
}

// Get returns the decoder registered under id.
func Get(id string) (Decoder, error) {
	d, ok := decoders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return d, nil
}

// IDs lists the registered provider identifiers in stable order.
func IDs() []string {
	out := make([]string, 0, len(decoders))
	for id := range decoders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
