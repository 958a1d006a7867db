package models

import (
	"errors"
	"fmt"
	"time"
)

// Algorithm selects the keyed-hash primitive used for code generation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

// Kind discriminates the OTP variant of an account.
type Kind string

const (
	// KindTOTP derives codes from the current time divided into fixed periods.
	KindTOTP Kind = "totp"
	// KindHOTP derives codes from a monotonic counter.
	KindHOTP Kind = "hotp"
	// KindSteam is time based like TOTP but renders codes over Steam's
	// 26-character alphabet.
	KindSteam Kind = "steam"
)

// Default digit counts per kind.
const (
	DefaultDigits      = 6
	DefaultSteamDigits = 5
	DefaultPeriod      = 30
)

// ErrInvalidConfiguration reports a bad digits/algorithm/secret combination
// at account construction time.
var ErrInvalidConfiguration = errors.New("invalid account configuration")

// Account is one OTP credential. The secret must never be logged, printed or
// serialized in cleartext outside the encrypted store.
type Account struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Issuer    string            `json:"issuer,omitempty"`
	Secret    []byte            `json:"secret"`
	Algorithm Algorithm         `json:"algorithm"`
	Digits    int               `json:"digits"`
	Kind      Kind              `json:"kind"`
	Period    uint64            `json:"period,omitempty"`
	Counter   uint64            `json:"counter,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Tags      []string          `json:"tags,omitempty"`
	Extras    map[string][]byte `json:"extras,omitempty"`
}

// Validate checks the construction-time invariants. Generation never
// re-validates; a store only ever holds accounts that passed here.
func (a *Account) Validate() error {
	if len(a.Secret) == 0 {
		return fmt.Errorf("%w: empty secret", ErrInvalidConfiguration)
	}
	switch a.Algorithm {
	case AlgorithmSHA1, AlgorithmSHA256, AlgorithmSHA512:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfiguration, a.Algorithm)
	}
	switch a.Kind {
	case KindTOTP:
		if a.Period == 0 {
			return fmt.Errorf("%w: totp period must be positive", ErrInvalidConfiguration)
		}
		if a.Digits != 6 && a.Digits != 8 {
			return fmt.Errorf("%w: digits must be 6 or 8, got %d", ErrInvalidConfiguration, a.Digits)
		}
	case KindHOTP:
		if a.Digits != 6 && a.Digits != 8 {
			return fmt.Errorf("%w: digits must be 6 or 8, got %d", ErrInvalidConfiguration, a.Digits)
		}
	case KindSteam:
		if a.Period == 0 {
			return fmt.Errorf("%w: steam period must be positive", ErrInvalidConfiguration)
		}
		if a.Digits != DefaultSteamDigits {
			return fmt.Errorf("%w: steam codes have %d digits, got %d", ErrInvalidConfiguration, DefaultSteamDigits, a.Digits)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfiguration, a.Kind)
	}
	return nil
}

// DisplayName combines issuer and label for listings.
func (a *Account) DisplayName() string {
	if a.Issuer != "" {
		return a.Issuer + ": " + a.Label
	}
	return a.Label
}

// Wipe overwrites the secret key material.
func (a *Account) Wipe() {
	for i := range a.Secret {
		a.Secret[i] = 0
	}
	a.Secret = nil
}

// Summary is an account view without key material, safe to hand to the shell.
type Summary struct {
	ID        string
	Label     string
	Issuer    string
	Kind      Kind
	Digits    int
	Period    uint64
	Counter   uint64
	Tags      []string
	CreatedAt time.Time
}

// Summarize strips the secret from an account.
func (a *Account) Summarize() Summary {
	return Summary{
		ID:        a.ID,
		Label:     a.Label,
		Issuer:    a.Issuer,
		Kind:      a.Kind,
		Digits:    a.Digits,
		Period:    a.Period,
		Counter:   a.Counter,
		Tags:      a.Tags,
		CreatedAt: a.CreatedAt,
	}
}
