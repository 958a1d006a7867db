package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/org/otpvault/pkg/models"
)

// ErrInvalidURI reports an unparseable or non-otpauth URI.
var ErrInvalidURI = errors.New("invalid otpauth uri")

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeSecret decodes a base32 secret the way authenticator apps emit them:
// case insensitive, padding optional.
func DecodeSecret(s string) ([]byte, error) {
	s = strings.TrimRight(strings.ToUpper(strings.TrimSpace(s)), "=")
	return base32NoPad.DecodeString(s)
}

// EncodeSecret encodes key material as an unpadded base32 string.
func EncodeSecret(secret []byte) string {
	return base32NoPad.EncodeToString(secret)
}

// ParseURI parses an otpauth:// URI into an account. The host selects the
// kind, the path carries "issuer:label", and the query holds the secret and
// optional algorithm/digits/period/counter parameters.
func ParseURI(raw string) (*models.Account, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "otpauth" {
		return nil, fmt.Errorf("%w: scheme %q is not supported", ErrInvalidURI, u.Scheme)
	}

	var kind models.Kind
	switch strings.ToLower(u.Host) {
	case "totp":
		kind = models.KindTOTP
	case "hotp":
		kind = models.KindHOTP
	case "steam":
		kind = models.KindSteam
	default:
		return nil, fmt.Errorf("%w: otp type %q is not supported", ErrInvalidURI, u.Host)
	}

	q := u.Query()

	secret, err := DecodeSecret(q.Get("secret"))
	if err != nil || len(secret) == 0 {
		return nil, fmt.Errorf("%w: bad secret parameter", ErrInvalidURI)
	}

	label := strings.TrimPrefix(u.Path, "/")
	issuer := q.Get("issuer")
	if pre, rest, ok := strings.Cut(label, ":"); ok {
		label = rest
		if issuer == "" {
			issuer = pre
		}
	}

	acc := &models.Account{
		Label:     label,
		Issuer:    issuer,
		Secret:    secret,
		Algorithm: models.AlgorithmSHA1,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	if v := q.Get("algorithm"); v != "" {
		switch strings.ToUpper(v) {
		case "SHA1":
			acc.Algorithm = models.AlgorithmSHA1
		case "SHA256":
			acc.Algorithm = models.AlgorithmSHA256
		case "SHA512":
			acc.Algorithm = models.AlgorithmSHA512
		default:
			return nil, fmt.Errorf("%w: algorithm %q is not supported", ErrInvalidURI, v)
		}
	}

	switch kind {
	case models.KindSteam:
		acc.Digits = models.DefaultSteamDigits
	default:
		acc.Digits = models.DefaultDigits
	}
	if v := q.Get("digits"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad digits parameter", ErrInvalidURI)
		}
		acc.Digits = d
	}

	switch kind {
	case models.KindHOTP:
		if v := q.Get("counter"); v != "" {
			c, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad counter parameter", ErrInvalidURI)
			}
			acc.Counter = c
		}
	default:
		acc.Period = models.DefaultPeriod
		if v := q.Get("period"); v != "" {
			p, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad period parameter", ErrInvalidURI)
			}
			acc.Period = p
		}
	}

	if err := acc.Validate(); err != nil {
		return nil, err
	}
	return acc, nil
}

// FormatURI renders an account back into an otpauth:// URI.
func FormatURI(acc *models.Account) string {
	q := url.Values{}
	q.Set("secret", EncodeSecret(acc.Secret))
	if acc.Issuer != "" {
		q.Set("issuer", acc.Issuer)
	}
	q.Set("algorithm", string(acc.Algorithm))
	q.Set("digits", strconv.Itoa(acc.Digits))

	host := string(acc.Kind)
	switch acc.Kind {
	case models.KindHOTP:
		q.Set("counter", strconv.FormatUint(acc.Counter, 10))
	default:
		q.Set("period", strconv.FormatUint(acc.Period, 10))
	}

	label := acc.Label
	if acc.Issuer != "" {
		label = acc.Issuer + ":" + acc.Label
	}

	u := url.URL{
		Scheme:   "otpauth",
		Host:     host,
		Path:     "/" + label,
		RawQuery: q.Encode(),
	}
	return u.String()
}
