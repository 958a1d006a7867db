package models

import (
	"errors"
	"testing"
)

func validTOTP() *Account {
	return &Account{
		ID:        "a",
		Label:     "alice",
		Secret:    []byte("12345678901234567890"),
		Algorithm: AlgorithmSHA1,
		Digits:    6,
		Kind:      KindTOTP,
		Period:    30,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Account)
		ok     bool
	}{
		{"valid totp", func(a *Account) {}, true},
		{"valid 8 digits", func(a *Account) { a.Digits = 8 }, true},
		{"valid sha256", func(a *Account) { a.Algorithm = AlgorithmSHA256 }, true},
		{"valid sha512", func(a *Account) { a.Algorithm = AlgorithmSHA512 }, true},
		{"valid hotp no period", func(a *Account) { a.Kind = KindHOTP; a.Period = 0 }, true},
		{"valid steam", func(a *Account) { a.Kind = KindSteam; a.Digits = 5 }, true},
		{"empty secret", func(a *Account) { a.Secret = nil }, false},
		{"unknown algorithm", func(a *Account) { a.Algorithm = "MD5" }, false},
		{"unknown kind", func(a *Account) { a.Kind = "motp" }, false},
		{"totp zero period", func(a *Account) { a.Period = 0 }, false},
		{"totp 7 digits", func(a *Account) { a.Digits = 7 }, false},
		{"hotp 5 digits", func(a *Account) { a.Kind = KindHOTP; a.Digits = 5 }, false},
		{"steam 6 digits", func(a *Account) { a.Kind = KindSteam; a.Digits = 6 }, false},
		{"steam zero period", func(a *Account) { a.Kind = KindSteam; a.Digits = 5; a.Period = 0 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := validTOTP()
			tc.mutate(acc)
			err := acc.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidConfiguration) {
					t.Fatalf("Validate() = %v, want ErrInvalidConfiguration", err)
				}
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	acc := validTOTP()
	acc.Issuer = "Example"
	if got := acc.DisplayName(); got != "Example: alice" {
		t.Fatalf("DisplayName() = %q", got)
	}
	acc.Issuer = ""
	if got := acc.DisplayName(); got != "alice" {
		t.Fatalf("DisplayName() = %q", got)
	}
}

func TestWipe(t *testing.T) {
	acc := validTOTP()
	secret := acc.Secret
	acc.Wipe()
	if acc.Secret != nil {
		t.Fatal("Wipe() left the secret attached")
	}
	for i, b := range secret {
		if b != 0 {
			t.Fatalf("Wipe() left byte %d = %#x", i, b)
		}
	}
}

func TestSummarizeOmitsSecret(t *testing.T) {
	acc := validTOTP()
	acc.Issuer = "Example"
	acc.Tags = []string{"work"}

	sum := acc.Summarize()
	if sum.ID != acc.ID || sum.Label != acc.Label || sum.Issuer != acc.Issuer {
		t.Fatalf("Summarize() = %+v", sum)
	}
	if sum.Kind != KindTOTP || sum.Digits != 6 || sum.Period != 30 {
		t.Fatalf("Summarize() = %+v", sum)
	}
}
