// Package otp implements HOTP/TOTP code generation and otpauth:// URIs.
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"time"

	"github.com/org/otpvault/pkg/models"
)

// steamChars is the alphabet used for Steam guard codes.
const steamChars = "23456789BCDFGHJKMNPQRTVWXY"

// Generate computes the code for an account at the given moment. For HOTP
// accounts the moment is ignored and the stored counter is used. Generation
// never mutates the account; advancing an HOTP counter is a separate store
// operation.
func Generate(acc *models.Account, moment time.Time) (string, error) {
	switch acc.Kind {
	case models.KindHOTP:
		return hotp(acc.Secret, acc.Counter, acc.Algorithm, acc.Digits)
	case models.KindTOTP:
		return hotp(acc.Secret, counterAt(moment, acc.Period), acc.Algorithm, acc.Digits)
	case models.KindSteam:
		return steam(acc.Secret, counterAt(moment, acc.Period), acc.Algorithm, acc.Digits)
	default:
		return "", fmt.Errorf("%w: unknown kind %q", models.ErrInvalidConfiguration, acc.Kind)
	}
}

// RemainingValidity reports how many seconds the code of a period-based
// account stays valid from the given moment. The result is always in
// [1, period]; it reaches the full period exactly on a period boundary.
func RemainingValidity(period uint64, moment time.Time) uint64 {
	return period - uint64(moment.UTC().Unix())%period
}

func counterAt(moment time.Time, period uint64) uint64 {
	return uint64(moment.UTC().Unix()) / period
}

// hotp is the RFC 4226 construction: HMAC over the big-endian counter,
// dynamic truncation, 31-bit masking, mod 10^digits.
func hotp(secret []byte, counter uint64, algorithm models.Algorithm, digits int) (string, error) {
	sum, err := mac(secret, counter, algorithm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, truncate(sum)%pow10(digits)), nil
}

// steam renders the truncated value over the Steam alphabet instead of
// decimal digits.
func steam(secret []byte, counter uint64, algorithm models.Algorithm, digits int) (string, error) {
	sum, err := mac(secret, counter, algorithm)
	if err != nil {
		return "", err
	}
	code := truncate(sum)
	out := make([]byte, digits)
	for i := range out {
		out[i] = steamChars[code%uint32(len(steamChars))]
		code /= uint32(len(steamChars))
	}
	return string(out), nil
}

func mac(secret []byte, counter uint64, algorithm models.Algorithm) ([]byte, error) {
	var newHash func() hash.Hash
	switch algorithm {
	case models.AlgorithmSHA1:
		newHash = sha1.New
	case models.AlgorithmSHA256:
		newHash = sha256.New
	case models.AlgorithmSHA512:
		newHash = sha512.New
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", models.ErrInvalidConfiguration, algorithm)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	h := hmac.New(newHash, secret)
	h.Write(buf[:])
	return h.Sum(nil), nil
}

// truncate extracts a 31-bit value from the MAC: 4 bytes starting at the
// offset named by the low nibble of the last byte, top bit masked.
func truncate(sum []byte) uint32 {
	offset := sum[len(sum)-1] & 0xf
	return binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
}

func pow10(n int) uint32 {
	out := uint32(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
