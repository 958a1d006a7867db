package provider

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/org/otpvault/internal/crypto"
	"github.com/org/otpvault/internal/otp"
	"github.com/org/otpvault/pkg/models"
)

// authproDecoder handles backups of Authenticator Pro (Stratum). Backups are
// either plain JSON or begin with a fixed "AuthenticatorPro" header followed
// by a PBKDF2 salt, an AES-CBC IV and PKCS7-padded ciphertext. The decoder
// detects which case applies from the leading bytes; CBC carries no
// authentication tag, so a wrong password surfaces as a padding or JSON
// failure after decryption.
type authproDecoder struct{}

const (
	authproMagic    = "AuthenticatorPro"
	authproRounds   = 64000
	authproSaltSize = 20
	authproIVSize   = 16
)

// Numeric enums used by the Authenticator Pro schema.
const (
	authproTypeHOTP  = 1
	authproTypeTOTP  = 2
	authproTypeMOTP  = 3
	authproTypeSteam = 4
)

type authproBackup struct {
	Authenticators          []authproAuthenticator  `json:"Authenticators"`
	Categories              []authproCategory       `json:"Categories"`
	AuthenticatorCategories []authproCategoryLink   `json:"AuthenticatorCategories"`
	CustomIcons             []json.RawMessage       `json:"CustomIcons"`
}

type authproAuthenticator struct {
	Type      int     `json:"Type"`
	Icon      *string `json:"Icon"`
	Issuer    string  `json:"Issuer"`
	Username  string  `json:"Username"`
	Secret    string  `json:"Secret"`
	Algorithm int     `json:"Algorithm"`
	Digits    int     `json:"Digits"`
	Period    uint64  `json:"Period"`
	Counter   uint64  `json:"Counter"`
	Ranking   int     `json:"Ranking"`
}

type authproCategory struct {
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Ranking int    `json:"Ranking"`
}

type authproCategoryLink struct {
	CategoryID          string `json:"CategoryId"`
	AuthenticatorSecret string `json:"AuthenticatorSecret"`
	Ranking             int    `json:"Ranking"`
}

func (authproDecoder) ID() string { return "authpro" }

func (authproDecoder) ExportName(encrypted bool) string {
	if encrypted {
		return "backup.authpro"
	}
	return "backup.json"
}

func (d authproDecoder) Decode(data []byte, passphrase []byte) (*Bundle, error) {
	raw := data
	encrypted := bytes.HasPrefix(data, []byte(authproMagic))
	if encrypted {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: file is encrypted, passphrase required", ErrWrongPassword)
		}
		var err error
		raw, err = d.decrypt(data, passphrase)
		if err != nil {
			return nil, err
		}
		defer crypto.Zero(raw)
	}

	var backup authproBackup
	if err := json.Unmarshal(raw, &backup); err != nil {
		if encrypted {
			// Padding happened to validate but the plaintext is garbage.
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("%w: not an Authenticator Pro backup: %v", ErrUnsupportedFormat, err)
	}

	bundle := &Bundle{Provider: d.ID()}
	for i, auth := range backup.Authenticators {
		acc, err := auth.account()
		if err != nil {
			bundle.warnf("skipping entry %d (%s): %v", i, auth.Username, err)
			continue
		}
		acc.Tags = backup.tagsFor(auth.Secret)
		bundle.Accounts = append(bundle.Accounts, acc)
	}
	return bundle, nil
}

func (authproDecoder) decrypt(data []byte, passphrase []byte) ([]byte, error) {
	header := len(authproMagic) + authproSaltSize + authproIVSize
	if len(data) <= header {
		return nil, fmt.Errorf("%w: file too short", ErrUnsupportedFormat)
	}

	salt := data[len(authproMagic) : len(authproMagic)+authproSaltSize]
	iv := data[len(authproMagic)+authproSaltSize : header]
	ciphertext := data[header:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block aligned", ErrCorrupt)
	}

	key := pbkdf2.Key(passphrase, salt, authproRounds, 32, sha1.New)
	defer crypto.Zero(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext)
	if err != nil {
		crypto.Zero(plaintext)
		return nil, ErrWrongPassword
	}
	return unpadded, nil
}

func (d authproDecoder) Encode(accounts []*models.Account, passphrase []byte) ([]byte, error) {
	backup := authproBackup{
		Authenticators:          make([]authproAuthenticator, 0, len(accounts)),
		Categories:              []authproCategory{},
		AuthenticatorCategories: []authproCategoryLink{},
		CustomIcons:             []json.RawMessage{},
	}
	for _, acc := range accounts {
		backup.Authenticators = append(backup.Authenticators, authproAuthenticatorFrom(acc))
	}
	raw, err := json.Marshal(backup)
	if err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}
	if len(passphrase) == 0 {
		return raw, nil
	}
	defer crypto.Zero(raw)
	return d.encrypt(raw, passphrase)
}

func (authproDecoder) encrypt(plaintext, passphrase []byte) ([]byte, error) {
	out := make([]byte, 0, len(authproMagic)+authproSaltSize+authproIVSize+len(plaintext)+aes.BlockSize)
	out = append(out, authproMagic...)

	salt := make([]byte, authproSaltSize)
	iv := make([]byte, authproIVSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}
	out = append(out, salt...)
	out = append(out, iv...)

	key := pbkdf2.Key(passphrase, salt, authproRounds, 32, sha1.New)
	defer crypto.Zero(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer crypto.Zero(padded)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return append(out, ciphertext...), nil
}

func (b *authproBackup) tagsFor(secret string) []string {
	var tags []string
	for _, link := range b.AuthenticatorCategories {
		if link.AuthenticatorSecret != secret {
			continue
		}
		for _, cat := range b.Categories {
			if cat.ID == link.CategoryID {
				tags = append(tags, cat.Name)
			}
		}
	}
	return tags
}

func (a *authproAuthenticator) account() (*models.Account, error) {
	secret, err := otp.DecodeSecret(a.Secret)
	if err != nil {
		return nil, fmt.Errorf("bad secret encoding: %w", err)
	}

	acc := &models.Account{
		Label:     a.Username,
		Issuer:    a.Issuer,
		Secret:    secret,
		Digits:    a.Digits,
		CreatedAt: time.Now().UTC(),
	}

	switch a.Type {
	case authproTypeHOTP:
		acc.Kind = models.KindHOTP
		acc.Counter = a.Counter
	case authproTypeTOTP:
		acc.Kind = models.KindTOTP
		acc.Period = a.Period
	case authproTypeSteam:
		acc.Kind = models.KindSteam
		acc.Period = a.Period
	case authproTypeMOTP:
		return nil, fmt.Errorf("mOTP entries are not supported")
	default:
		return nil, fmt.Errorf("unsupported entry type %d", a.Type)
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

	switch a.Algorithm {
	case 0:
		acc.Algorithm = models.AlgorithmSHA1
	case 1:
		acc.Algorithm = models.AlgorithmSHA256
	case 2:
		acc.Algorithm = models.AlgorithmSHA512
	default:
		return nil, fmt.Errorf("unsupported algorithm %d", a.Algorithm)
	}

	return acc, acc.Validate()
}

func authproAuthenticatorFrom(acc *models.Account) authproAuthenticator {
	auth := authproAuthenticator{
		Type:     authproTypeTOTP,
		Issuer:   acc.Issuer,
		Username: acc.Label,
		Secret:   otp.EncodeSecret(acc.Secret),
		Digits:   acc.Digits,
		Period:   acc.Period,
	}
	switch acc.Kind {
	case models.KindHOTP:
		auth.Type = authproTypeHOTP
		auth.Period = 0
		auth.Counter = acc.Counter
	case models.KindSteam:
		auth.Type = authproTypeSteam
	}
	switch acc.Algorithm {
	case models.AlgorithmSHA256:
		auth.Algorithm = 1
	case models.AlgorithmSHA512:
		auth.Algorithm = 2
	}
	return auth
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}
