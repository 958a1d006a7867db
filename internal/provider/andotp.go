package provider

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/org/otpvault/internal/crypto"
	"github.com/org/otpvault/internal/otp"
	"github.com/org/otpvault/pkg/models"
)

// andotpDecoder handles backups of the andOTP Android app. An encrypted
// backup is a single binary blob: a big-endian PBKDF2 iteration count, a
// 12-byte salt, a 12-byte IV and the AES-256-GCM sealed JSON account list.
// Unencrypted backups are the bare JSON array.
type andotpDecoder struct{}

const (
	andotpSaltSize = 12
	andotpIVSize   = 12
	andotpHeader   = 4 + andotpSaltSize + andotpIVSize
)

type andotpAccount struct {
	Secret    string   `json:"secret"`
	Issuer    string   `json:"issuer"`
	Label     string   `json:"label"`
	Digits    int      `json:"digits"`
	Period    uint64   `json:"period,omitempty"`
	Counter   uint64   `json:"counter,omitempty"`
	Type      string   `json:"type"`
	Algorithm string   `json:"algorithm"`
	Tags      []string `json:"tags,omitempty"`
}

func (andotpDecoder) ID() string { return "andotp" }

func (andotpDecoder) ExportName(encrypted bool) string {
	if encrypted {
		return "otp_accounts.json.aes"
	}
	return "otp_accounts.json"
}

func (d andotpDecoder) Decode(data []byte, passphrase []byte) (*Bundle, error) {
	raw := data
	if len(passphrase) > 0 {
		var err error
		raw, err = d.decrypt(data, passphrase)
		if err != nil {
			return nil, err
		}
		defer crypto.Zero(raw)
	}

	var records []andotpAccount
	if err := json.Unmarshal(raw, &records); err != nil {
		if len(passphrase) > 0 {
			// GCM authenticated the blob, so garbage here means a broken
			// export, not a wrong password.
			return nil, fmt.Errorf("%w: account list: %v", ErrCorrupt, err)
		}
		return nil, fmt.Errorf("%w: not an andOTP account list: %v", ErrUnsupportedFormat, err)
	}

	bundle := &Bundle{Provider: d.ID()}
	for i, rec := range records {
		acc, err := rec.account()
		if err != nil {
			bundle.warnf("skipping entry %d (%s): %v", i, rec.Label, err)
			continue
		}
		bundle.Accounts = append(bundle.Accounts, acc)
	}
	return bundle, nil
}

func (andotpDecoder) decrypt(data []byte, passphrase []byte) ([]byte, error) {
	if len(data) <= andotpHeader {
		return nil, fmt.Errorf("%w: file too short", ErrUnsupportedFormat)
	}

	iterations := binary.BigEndian.Uint32(data[:4])
	salt := data[4 : 4+andotpSaltSize]
	iv := data[4+andotpSaltSize : andotpHeader]

	key := pbkdf2.Key(passphrase, salt, int(iterations), 32, sha1.New)
	defer crypto.Zero(key)

	gcm, err := newGCM(key, andotpIVSize)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, data[andotpHeader:], nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func (d andotpDecoder) Encode(accounts []*models.Account, passphrase []byte) ([]byte, error) {
	records := make([]andotpAccount, len(accounts))
	for i, acc := range accounts {
		records[i] = andotpAccountFrom(acc)
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding account list: %w", err)
	}
	if len(passphrase) == 0 {
		return raw, nil
	}
	defer crypto.Zero(raw)
	return d.encrypt(raw, passphrase)
}

func (andotpDecoder) encrypt(plaintext, passphrase []byte) ([]byte, error) {
	head := make([]byte, andotpHeader)
	// andOTP randomizes the iteration count per backup.
	iterations := 140000 + randomBelow(20000)
	binary.BigEndian.PutUint32(head[:4], uint32(iterations))
	if _, err := io.ReadFull(rand.Reader, head[4:]); err != nil {
		return nil, fmt.Errorf("generating salt and iv: %w", err)
	}

	key := pbkdf2.Key(passphrase, head[4:4+andotpSaltSize], iterations, 32, sha1.New)
	defer crypto.Zero(key)

	gcm, err := newGCM(key, andotpIVSize)
	if err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, head[4+andotpSaltSize:andotpHeader], plaintext, nil)
	return append(head, sealed...), nil
}

func randomBelow(n int) int {
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint32(buf[:])) % n
}

func (r *andotpAccount) account() (*models.Account, error) {
	secret, err := otp.DecodeSecret(r.Secret)
	if err != nil {
		return nil, fmt.Errorf("bad secret encoding: %w", err)
	}

	acc := &models.Account{
		Label:     r.Label,
		Issuer:    r.Issuer,
		Secret:    secret,
		Digits:    r.Digits,
		Tags:      r.Tags,
		CreatedAt: time.Now().UTC(),
	}

	switch r.Type {
	case "TOTP":
		acc.Kind = models.KindTOTP
		acc.Period = r.Period
	case "HOTP":
		acc.Kind = models.KindHOTP
		acc.Counter = r.Counter
	case "STEAM":
		acc.Kind = models.KindSteam
		acc.Period = r.Period
	default:
		return nil, fmt.Errorf("unsupported entry type %q", r.Type)
	}
	if acc.Digits == 0 {
		if acc.Kind == models.KindSteam {
			acc.Digits = models.DefaultSteamDigits
		} else {
			acc.Digits = models.DefaultDigits
		}
	}
	if acc.Period == 0 && acc.Kind != models.KindHOTP {
		acc.Period = models.DefaultPeriod
	}

	switch r.Algorithm {
	case "SHA1", "":
		acc.Algorithm = models.AlgorithmSHA1
	case "SHA256":
		acc.Algorithm = models.AlgorithmSHA256
	case "SHA512":
		acc.Algorithm = models.AlgorithmSHA512
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", r.Algorithm)
	}

	return acc, acc.Validate()
}

func andotpAccountFrom(acc *models.Account) andotpAccount {
	rec := andotpAccount{
		Secret:    otp.EncodeSecret(acc.Secret),
		Issuer:    acc.Issuer,
		Label:     acc.Label,
		Digits:    acc.Digits,
		Algorithm: string(acc.Algorithm),
		Tags:      acc.Tags,
	}
	switch acc.Kind {
	case models.KindHOTP:
		rec.Type = "HOTP"
		rec.Counter = acc.Counter
	case models.KindSteam:
		rec.Type = "STEAM"
		rec.Period = acc.Period
	default:
		rec.Type = "TOTP"
		rec.Period = acc.Period
	}
	return rec
}
