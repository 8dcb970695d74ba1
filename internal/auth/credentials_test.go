package auth

import (
	"errors"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	v := NewVerifier(Credentials{Username: "Moose@Example.com", Password: "s3cret-Pass"})

	cases := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"exact", "Moose@Example.com", "s3cret-Pass", true},
		{"case and padding on username", "  moose@example.COM\t", "s3cret-Pass", true},
		{"password case differs", "moose@example.com", "S3cret-Pass", false},
		{"password padded", "moose@example.com", " s3cret-Pass", false},
		{"wrong username", "other@example.com", "s3cret-Pass", false},
		{"shorter username", "moose", "s3cret-Pass", false},
		{"longer password", "moose@example.com", "s3cret-Pass-and-more", false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.Authenticate(tc.username, tc.password); got != tc.want {
				t.Fatalf("Authenticate(%q, %q) = %v, want %v", tc.username, tc.password, got, tc.want)
			}
		})
	}
}

func TestAuthenticateRejectsEverySingleCharacterChange(t *testing.T) {
	const password = "abcdefgh"
	v := NewVerifier(Credentials{Username: "admin", Password: password})

	for i := range password {
		changed := []byte(password)
		changed[i] ^= 0x01
		if v.Authenticate("admin", string(changed)) {
			t.Fatalf("password changed at index %d was accepted", i)
		}
	}
}

func TestAuthenticateUnconfiguredFailsClosed(t *testing.T) {
	v := NewVerifier(Credentials{})
	if v.Configured() {
		t.Fatal("expected verifier to be unconfigured")
	}
	if v.Authenticate("", "") {
		t.Fatal("unconfigured verifier must not authenticate empty credentials")
	}

	var nilVerifier *Verifier
	if nilVerifier.Authenticate("admin", "pass") {
		t.Fatal("nil verifier must not authenticate")
	}
}

func TestCredentialsValidate(t *testing.T) {
	if err := (Credentials{Username: "admin", Password: "pw"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range []Credentials{{}, {Username: "admin"}, {Password: "pw"}, {Username: "   ", Password: "pw"}} {
		if err := c.Validate(); !errors.Is(err, ErrCredentialsNotConfigured) {
			t.Fatalf("Validate(%+v) = %v, want ErrCredentialsNotConfigured", c, err)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"", "", true},
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "ab", false},
		// ゼロ埋めしても長さが違えば一致しない
		{"ab\x00", "ab", false},
		{"", "\x00", false},
	}
	for _, tc := range cases {
		if got := constantTimeEqual([]byte(tc.a), []byte(tc.b)); got != tc.want {
			t.Fatalf("constantTimeEqual(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
