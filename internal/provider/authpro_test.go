package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/org/otpvault/pkg/models"
)

const authproPlainFixture = `{
	"Authenticators": [
		{
			"Type": 2,
			"Icon": null,
			"Issuer": "Example",
			"Username": "alice@example.com",
			"Secret": "JBSWY3DPEHPK3PXP",
			"Algorithm": 0,
			"Digits": 6,
			"Period": 30,
			"Counter": 0,
			"Ranking": 0
		},
		{
			"Type": 1,
			"Icon": null,
			"Issuer": "Counter Corp",
			"Username": "bob",
			"Secret": "JBSWY3DPEHPK3PXQ",
			"Algorithm": 2,
			"Digits": 8,
			"Period": 0,
			"Counter": 42,
			"Ranking": 0
		},
		{
			"Type": 4,
			"Icon": null,
			"Issuer": "Steam",
			"Username": "gamer",
			"Secret": "JBSWY3DPEHPK3PXR",
			"Algorithm": 0,
			"Digits": 5,
			"Period": 30,
			"Counter": 0,
			"Ranking": 0
		}
	],
	"Categories": [
		{"Id": "cat-1", "Name": "Work", "Ranking": 0},
		{"Id": "cat-2", "Name": "Email", "Ranking": 1}
	],
	"AuthenticatorCategories": [
		{"CategoryId": "cat-1", "AuthenticatorSecret": "JBSWY3DPEHPK3PXP", "Ranking": 0},
		{"CategoryId": "cat-2", "AuthenticatorSecret": "JBSWY3DPEHPK3PXP", "Ranking": 0}
	],
	"CustomIcons": []
}`

func TestAuthproDecodePlain(t *testing.T) {
	bundle, err := authproDecoder{}.Decode([]byte(authproPlainFixture), nil)
	require.NoError(t, err)
	assert.Equal(t, "authpro", bundle.Provider)
	assert.Empty(t, bundle.Warnings)
	require.Len(t, bundle.Accounts, 3)

	totp := bundle.Accounts[0]
	assert.Equal(t, "alice@example.com", totp.Label)
	assert.Equal(t, "Example", totp.Issuer)
	assert.Equal(t, fixtureSecret, totp.Secret)
	assert.Equal(t, models.KindTOTP, totp.Kind)
	assert.Equal(t, models.AlgorithmSHA1, totp.Algorithm)
	assert.Equal(t, []string{"Work", "Email"}, totp.Tags)

	hotp := bundle.Accounts[1]
	assert.Equal(t, models.KindHOTP, hotp.Kind)
	assert.Equal(t, models.AlgorithmSHA512, hotp.Algorithm)
	assert.Equal(t, uint64(42), hotp.Counter)
	assert.Empty(t, hotp.Tags)

	steam := bundle.Accounts[2]
	assert.Equal(t, models.KindSteam, steam.Kind)
	assert.Equal(t, 5, steam.Digits)
}

func TestAuthproDecodeSkipsMOTP(t *testing.T) {
	fixture := `{
		"Authenticators": [
			{"Type": 3, "Issuer": "Legacy", "Username": "old", "Secret": "JBSWY3DPEHPK3PXP",
			 "Algorithm": 0, "Digits": 6, "Period": 30},
			{"Type": 2, "Issuer": "Example", "Username": "kept", "Secret": "JBSWY3DPEHPK3PXP",
			 "Algorithm": 0, "Digits": 6, "Period": 30}
		],
		"Categories": [], "AuthenticatorCategories": [], "CustomIcons": []
	}`
	bundle, err := authproDecoder{}.Decode([]byte(fixture), nil)
	require.NoError(t, err)
	require.Len(t, bundle.Accounts, 1)
	assert.Equal(t, "kept", bundle.Accounts[0].Label)
	require.Len(t, bundle.Warnings, 1)
	assert.Contains(t, bundle.Warnings[0], "mOTP")
}

func TestAuthproEncryptedRoundTrip(t *testing.T) {
	accounts := []*models.Account{
		{
			Label:     "alice@example.com",
			Issuer:    "Example",
			Secret:    append([]byte(nil), fixtureSecret...),
			Algorithm: models.AlgorithmSHA256,
			Digits:    6,
			Kind:      models.KindTOTP,
			Period:    30,
		},
		{
			Label:     "bob",
			Issuer:    "Counter Corp",
			Secret:    append([]byte(nil), fixtureSecret...),
			Algorithm: models.AlgorithmSHA1,
			Digits:    8,
			Kind:      models.KindHOTP,
			Counter:   9,
		},
	}

	data, err := authproDecoder{}.Encode(accounts, []byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, []byte(authproMagic), data[:len(authproMagic)])

	bundle, err := authproDecoder{}.Decode(data, []byte("hunter2"))
	require.NoError(t, err)
	require.Len(t, bundle.Accounts, 2)
	assert.Equal(t, "alice@example.com", bundle.Accounts[0].Label)
	assert.Equal(t, models.AlgorithmSHA256, bundle.Accounts[0].Algorithm)
	assert.Equal(t, models.KindHOTP, bundle.Accounts[1].Kind)
	assert.Equal(t, uint64(9), bundle.Accounts[1].Counter)
}

func TestAuthproEncryptedWrongPassword(t *testing.T) {
	accounts := []*models.Account{{
		Label:     "alice",
		Secret:    append([]byte(nil), fixtureSecret...),
		Algorithm: models.AlgorithmSHA1,
		Digits:    6,
		Kind:      models.KindTOTP,
		Period:    30,
	}}
	data, err := authproDecoder{}.Encode(accounts, []byte("correct"))
	require.NoError(t, err)

	_, err = authproDecoder{}.Decode(data, []byte("incorrect"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = authproDecoder{}.Decode(data, nil)
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestAuthproDecodedSecretsOutliveBuffers(t *testing.T) {
	accounts := []*models.Account{{
		Label:     "alice",
		Secret:    append([]byte(nil), fixtureSecret...),
		Algorithm: models.AlgorithmSHA1,
		Digits:    6,
		Kind:      models.KindTOTP,
		Period:    30,
	}}
	data, err := authproDecoder{}.Encode(accounts, []byte("hunter2"))
	require.NoError(t, err)

	bundle, err := authproDecoder{}.Decode(data, []byte("hunter2"))
	require.NoError(t, err)

	// The CBC plaintext is wiped when Decode returns; the bundled secrets
	// must be independent copies.
	for i := range data {
		data[i] = 0
	}
	require.Len(t, bundle.Accounts, 1)
	assert.Equal(t, fixtureSecret, bundle.Accounts[0].Secret)
}

func TestAuthproDecodeGarbage(t *testing.T) {
	_, err := authproDecoder{}.Decode([]byte("[1,2,3"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// Magic prefix but truncated body.
	_, err = authproDecoder{}.Decode([]byte(authproMagic+"short"), []byte("pw"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAuthproExportName(t *testing.T) {
	assert.Equal(t, "backup.authpro", authproDecoder{}.ExportName(true))
	assert.Equal(t, "backup.json", authproDecoder{}.ExportName(false))
}
