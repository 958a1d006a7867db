package provider

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/scrypt"

	"github.com/google/uuid"
	"github.com/org/otpvault/internal/crypto"
	"github.com/org/otpvault/internal/otp"
	"github.com/org/otpvault/pkg/models"
)

// aegisDecoder handles backups of the Aegis Authenticator Android app. The
// export is a JSON envelope; encrypted backups wrap the vault in AES-256-GCM
// under a random master key, which is itself wrapped in a password slot keyed
// by scrypt.
type aegisDecoder struct{}

const (
	aegisSlotTypePassword = 1

	aegisExtraIcon     = "aegis/icon"
	aegisExtraIconMime = "aegis/icon_mime"
	aegisExtraNote     = "aegis/note"
)

type aegisExport struct {
	Version int             `json:"version"`
	Header  aegisHeader     `json:"header"`
	DB      json.RawMessage `json:"db"`
}

type aegisHeader struct {
	Slots  []aegisSlot     `json:"slots"`
	Params *aegisKeyParams `json:"params"`
}

type aegisSlot struct {
	Type      int            `json:"type"`
	UUID      string         `json:"uuid"`
	Key       string         `json:"key"`
	KeyParams aegisKeyParams `json:"key_params"`
	N         int            `json:"n,omitempty"`
	R         int            `json:"r,omitempty"`
	P         int            `json:"p,omitempty"`
	Salt      string         `json:"salt,omitempty"`
	Repaired  bool           `json:"repaired,omitempty"`
}

type aegisKeyParams struct {
	Nonce string `json:"nonce"`
	Tag   string `json:"tag"`
}

type aegisVault struct {
	Version int          `json:"version"`
	Entries []aegisEntry `json:"entries"`
}

type aegisEntry struct {
	Type     string    `json:"type"`
	UUID     string    `json:"uuid"`
	Name     string    `json:"name"`
	Issuer   string    `json:"issuer"`
	Group    *string   `json:"group,omitempty"`
	Icon     *string   `json:"icon"`
	IconMime *string   `json:"icon_mime,omitempty"`
	Note     string    `json:"note"`
	Info     aegisInfo `json:"info"`
}

type aegisInfo struct {
	Secret  string `json:"secret"`
	Algo    string `json:"algo"`
	Digits  int    `json:"digits"`
	Period  uint64 `json:"period,omitempty"`
	Counter uint64 `json:"counter,omitempty"`
}

func (aegisDecoder) ID() string { return "aegis" }

func (aegisDecoder) ExportName(encrypted bool) string {
	if encrypted {
		return "aegis-export.json"
	}
	return "aegis-export-plain.json"
}

func (d aegisDecoder) Decode(data []byte, passphrase []byte) (*Bundle, error) {
	var export aegisExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: not an aegis export: %v", ErrUnsupportedFormat, err)
	}

	// An encrypted export carries the vault as a base64 string, a plain one
	// inlines it as an object. The leading byte of the raw value decides.
	var vault aegisVault
	if len(export.DB) > 0 && export.DB[0] == '"' {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: file is encrypted, passphrase required", ErrWrongPassword)
		}
		plaintext, err := d.decryptVault(&export, passphrase)
		if err != nil {
			return nil, err
		}
		defer crypto.Zero(plaintext)
		if err := json.Unmarshal(plaintext, &vault); err != nil {
			return nil, fmt.Errorf("%w: vault payload: %v", ErrCorrupt, err)
		}
	} else {
		if err := json.Unmarshal(export.DB, &vault); err != nil {
			return nil, fmt.Errorf("%w: vault document: %v", ErrUnsupportedFormat, err)
		}
	}

	bundle := &Bundle{Provider: d.ID()}
	for i, entry := range vault.Entries {
		acc, err := entry.account()
		if err != nil {
			bundle.warnf("skipping entry %d (%s): %v", i, entry.Name, err)
			continue
		}
		bundle.Accounts = append(bundle.Accounts, acc)
	}
	return bundle, nil
}

// decryptVault opens the password slot with an scrypt-derived key, then uses
// the unwrapped master key to open the vault blob. Both layers are AES-256-GCM
// with detached nonce and tag.
func (aegisDecoder) decryptVault(export *aegisExport, passphrase []byte) ([]byte, error) {
	var slot *aegisSlot
	for i := range export.Header.Slots {
		if export.Header.Slots[i].Type == aegisSlotTypePassword {
			slot = &export.Header.Slots[i]
			break
		}
	}
	if slot == nil || export.Header.Params == nil {
		return nil, fmt.Errorf("%w: no password slot in header", ErrUnsupportedFormat)
	}

	salt, err := hex.DecodeString(slot.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: slot salt: %v", ErrCorrupt, err)
	}
	derived, err := scrypt.Key(passphrase, salt, slot.N, slot.R, slot.P, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt parameters: %v", ErrCorrupt, err)
	}
	defer crypto.Zero(derived)

	wrappedKey, err := hex.DecodeString(slot.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: slot key: %v", ErrCorrupt, err)
	}
	slotNonce, slotTag, err := decodeAegisParams(&slot.KeyParams)
	if err != nil {
		return nil, err
	}
	masterKey, err := gcmOpenDetached(derived, slotNonce, wrappedKey, slotTag)
	if err != nil {
		return nil, ErrWrongPassword
	}
	defer crypto.Zero(masterKey)

	blob, err := base64.StdEncoding.DecodeString(string(trimQuotes(export.DB)))
	if err != nil {
		return nil, fmt.Errorf("%w: vault blob: %v", ErrCorrupt, err)
	}
	dbNonce, dbTag, err := decodeAegisParams(export.Header.Params)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcmOpenDetached(masterKey, dbNonce, blob, dbTag)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func (d aegisDecoder) Encode(accounts []*models.Account, passphrase []byte) ([]byte, error) {
	vault := aegisVault{Version: 2}
	for _, acc := range accounts {
		vault.Entries = append(vault.Entries, aegisEntryFrom(acc))
	}

	if len(passphrase) == 0 {
		db, err := json.Marshal(vault)
		if err != nil {
			return nil, fmt.Errorf("encoding vault: %w", err)
		}
		return json.Marshal(aegisExport{Version: 1, DB: db})
	}

	plaintext, err := json.Marshal(vault)
	if err != nil {
		return nil, fmt.Errorf("encoding vault: %w", err)
	}
	defer crypto.Zero(plaintext)

	masterKey := make([]byte, 32)
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, masterKey); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}
	defer crypto.Zero(masterKey)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	const n, r, p = 1 << 15, 8, 1
	derived, err := scrypt.Key(passphrase, salt, n, r, p, 32)
	if err != nil {
		return nil, fmt.Errorf("deriving slot key: %w", err)
	}
	defer crypto.Zero(derived)

	blob, dbNonce, dbTag, err := gcmSealDetached(masterKey, plaintext)
	if err != nil {
		return nil, err
	}
	wrappedKey, slotNonce, slotTag, err := gcmSealDetached(derived, masterKey)
	if err != nil {
		return nil, err
	}

	db, err := json.Marshal(base64.StdEncoding.EncodeToString(blob))
	if err != nil {
		return nil, err
	}

	export := aegisExport{
		Version: 1,
		Header: aegisHeader{
			Slots: []aegisSlot{{
				Type: aegisSlotTypePassword,
				UUID: uuid.NewString(),
				Key:  hex.EncodeToString(wrappedKey),
				KeyParams: aegisKeyParams{
					Nonce: hex.EncodeToString(slotNonce),
					Tag:   hex.EncodeToString(slotTag),
				},
				N:        n,
				R:        r,
				P:        p,
				Salt:     hex.EncodeToString(salt),
				Repaired: true,
			}},
			Params: &aegisKeyParams{
				Nonce: hex.EncodeToString(dbNonce),
				Tag:   hex.EncodeToString(dbTag),
			},
		},
		DB: db,
	}
	return json.Marshal(export)
}

func (e *aegisEntry) account() (*models.Account, error) {
	secret, err := otp.DecodeSecret(e.Info.Secret)
	if err != nil {
		return nil, fmt.Errorf("bad secret encoding: %w", err)
	}

	acc := &models.Account{
		Label:     e.Name,
		Issuer:    e.Issuer,
		Secret:    secret,
		Digits:    e.Info.Digits,
		CreatedAt: time.Now().UTC(),
	}

	switch e.Type {
	case "totp":
		acc.Kind = models.KindTOTP
		acc.Period = e.Info.Period
	case "hotp":
		acc.Kind = models.KindHOTP
		acc.Counter = e.Info.Counter
	case "steam":
		acc.Kind = models.KindSteam
		acc.Period = e.Info.Period
	default:
		return nil, fmt.Errorf("unsupported entry type %q", e.Type)
	}
	if acc.Digits == 0 {
		if acc.Kind == models.KindSteam {
			acc.Digits = models.DefaultSteamDigits
		} else {
			acc.Digits = models.DefaultDigits
		}
	}

	switch e.Info.Algo {
	case "SHA1", "":
		acc.Algorithm = models.AlgorithmSHA1
	case "SHA256":
		acc.Algorithm = models.AlgorithmSHA256
	case "SHA512":
		acc.Algorithm = models.AlgorithmSHA512
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", e.Info.Algo)
	}

	if e.Group != nil && *e.Group != "" {
		acc.Tags = []string{*e.Group}
	}
	if e.Icon != nil {
		if icon, err := base64.StdEncoding.DecodeString(*e.Icon); err == nil {
			setExtra(acc, aegisExtraIcon, icon)
		}
	}
	if e.IconMime != nil {
		setExtra(acc, aegisExtraIconMime, []byte(*e.IconMime))
	}
	if e.Note != "" {
		setExtra(acc, aegisExtraNote, []byte(e.Note))
	}

	return acc, acc.Validate()
}

func aegisEntryFrom(acc *models.Account) aegisEntry {
	entry := aegisEntry{
		Type:   "totp",
		UUID:   uuid.NewString(),
		Name:   acc.Label,
		Issuer: acc.Issuer,
		Info: aegisInfo{
			Secret: otp.EncodeSecret(acc.Secret),
			Algo:   string(acc.Algorithm),
			Digits: acc.Digits,
			Period: acc.Period,
		},
	}
	switch acc.Kind {
	case models.KindHOTP:
		entry.Type = "hotp"
		entry.Info.Period = 0
		entry.Info.Counter = acc.Counter
	case models.KindSteam:
		entry.Type = "steam"
	}

	if len(acc.Tags) > 0 {
		entry.Group = &acc.Tags[0]
	}
	if icon, ok := acc.Extras[aegisExtraIcon]; ok {
		s := base64.StdEncoding.EncodeToString(icon)
		entry.Icon = &s
	}
	if mime, ok := acc.Extras[aegisExtraIconMime]; ok {
		s := string(mime)
		entry.IconMime = &s
	}
	if note, ok := acc.Extras[aegisExtraNote]; ok {
		entry.Note = string(note)
	}
	return entry
}

func setExtra(acc *models.Account, key string, value []byte) {
	if acc.Extras == nil {
		acc.Extras = make(map[string][]byte)
	}
	acc.Extras[key] = value
}

func decodeAegisParams(p *aegisKeyParams) (nonce, tag []byte, err error) {
	nonce, err = hex.DecodeString(p.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nonce: %v", ErrCorrupt, err)
	}
	tag, err = hex.DecodeString(p.Tag)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: tag: %v", ErrCorrupt, err)
	}
	return nonce, tag, nil
}

func trimQuotes(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return []byte(s)
}

// gcmOpenDetached decrypts AES-256-GCM ciphertext whose tag is carried
// separately, as aegis stores it.
func gcmOpenDetached(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key, len(nonce))
	if err != nil {
		return nil, err
	}
	joined := make([]byte, 0, len(ciphertext)+len(tag))
	joined = append(joined, ciphertext...)
	joined = append(joined, tag...)
	return gcm.Open(nil, nonce, joined, nil)
}

// gcmSealDetached encrypts with AES-256-GCM under a fresh nonce, returning
// ciphertext, nonce and tag separately.
func gcmSealDetached(key, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	gcm, err := newGCM(key, 12)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - gcm.Overhead()
	return sealed[:split], nonce, sealed[split:], nil
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
