package config

import (
	"errors"
	"testing"
)

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"":            Production,
		"production":  Production,
		"PRODUCTION":  Production,
		"staging":     Production,
		"development": Development,
		" Dev ":       Development,
		"local":       Development,
	}
	for raw, want := range cases {
		if got := ParseEnvironment(raw); got != want {
			t.Fatalf("ParseEnvironment(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SESSION_TTL_SECONDS", "")
	t.Setenv("SESSION_REFRESH_SECONDS", "")
	t.Setenv("MAX_FILE_BYTES", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg := FromEnv()
	if cfg.Environment != Production {
		t.Fatalf("unexpected environment: %v", cfg.Environment)
	}
	if cfg.SessionTTLSeconds != 43200 {
		t.Fatalf("unexpected ttl: %d", cfg.SessionTTLSeconds)
	}
	if cfg.SessionRefreshSeconds != 3600 {
		t.Fatalf("unexpected refresh threshold: %d", cfg.SessionRefreshSeconds)
	}
	if cfg.MaxFileBytes != 500*1024*1024 {
		t.Fatalf("invalid MAX_FILE_BYTES should fall back to default, got %d", cfg.MaxFileBytes)
	}
	if proxies := cfg.TrustedProxyList(); proxies != nil {
		t.Fatalf("trusted proxies should default to none, got %#v", proxies)
	}
}

func TestValidateProductionRequiresCredentials(t *testing.T) {
	base := Config{
		AdminUsername:         "admin",
		AdminPassword:         "hunter2",
		SessionSecret:         "0123456789abcdef0123456789abcdef",
		Environment:           Production,
		SessionTTLSeconds:     43200,
		SessionRefreshSeconds: 3600,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missingUser := base
	missingUser.AdminUsername = ""
	if err := missingUser.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing username, got %v", err)
	}

	missingPass := base
	missingPass.AdminPassword = ""
	if err := missingPass.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing password, got %v", err)
	}

	shortSecret := base
	shortSecret.SessionSecret = "short"
	if err := shortSecret.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for short secret, got %v", err)
	}
}

func TestValidateDevelopmentAllowsMissingCredentials(t *testing.T) {
	cfg := Config{
		Environment:           Development,
		SessionTTLSeconds:     43200,
		SessionRefreshSeconds: 3600,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateSessionWindows(t *testing.T) {
	cfg := Config{Environment: Development, SessionTTLSeconds: 0}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected error for zero ttl, got %v", err)
	}

	cfg = Config{Environment: Development, SessionTTLSeconds: 600, SessionRefreshSeconds: 600}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected error when refresh threshold >= ttl, got %v", err)
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example , ,https://b.example"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", got)
	}
}

func TestTrustedProxyList(t *testing.T) {
	cfg := Config{TrustedProxies: "10.0.0.1, 192.168.0.0/16,"}
	got := cfg.TrustedProxyList()
	if len(got) != 2 || got[0] != "10.0.0.1" || got[1] != "192.168.0.0/16" {
		t.Fatalf("unexpected proxies: %#v", got)
	}
}
