package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PaymentWindow != 24*time.Hour {
		t.Errorf("PaymentWindow = %v, want 24h", cfg.PaymentWindow)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.Links.RateLimit != 30 || cfg.Links.RateWindow != time.Minute {
		t.Errorf("Links = %+v", cfg.Links)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Redis should be disabled by default, got %q", cfg.Redis.Addr)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := strings.Join([]string{
		"store_driver: memory",
		"payment_window: 48h",
		"api_port: 9000",
		"smtp:",
		"  host: mail.example.com",
		"  from: noreply@example.com",
		"notify:",
		"  events: [bid_accepted]",
		"links:",
		"  rate_limit: 5",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("API_PORT", "9100")
	t.Setenv("NOTIFY_EVENTS", "bid_accepted, payment_confirmed ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Errorf("StoreDriver = %q, want memory from file", cfg.StoreDriver)
	}
	if cfg.PaymentWindow != 48*time.Hour {
		t.Errorf("PaymentWindow = %v, want 48h from file", cfg.PaymentWindow)
	}
	if cfg.APIPort != 9100 {
		t.Errorf("APIPort = %d, want env value 9100", cfg.APIPort)
	}
	if cfg.SMTP.Host != "mail.example.com" || cfg.SMTP.Port != 587 {
		t.Errorf("SMTP = %+v", cfg.SMTP)
	}
	if want := []string{"bid_accepted", "payment_confirmed"}; !reflect.DeepEqual(cfg.Notify.Events, want) {
		t.Errorf("Events = %v, want %v", cfg.Notify.Events, want)
	}
	if cfg.Links.RateLimit != 5 || cfg.Links.RateWindow != time.Minute {
		t.Errorf("Links = %+v", cfg.Links)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("api_port: [not a number"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", testSecret)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "at least 32"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"memory without dsn", func(c *Config) { c.StoreDriver = StoreDriverMemory; c.DatabaseURL = "" }, ""},
		{"postgres without dsn", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"zero window", func(c *Config) { c.PaymentWindow = 0 }, "PAYMENT_WINDOW"},
		{"smtp without from", func(c *Config) { c.SMTP.Host = "mail" }, "SMTP_FROM"},
		{"short link secret", func(c *Config) { c.Links.Secret = "short" }, "LINK_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.JWTSecret = testSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithDefaultsFillsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg := LoadWithDefaults()
	if len(cfg.JWTSecret) < 32 {
		t.Errorf("dev secret too short: %q", cfg.JWTSecret)
	}
}

func TestLinkSecretFallsBackToJWTSecret(t *testing.T) {
	cfg := Defaults()
	cfg.JWTSecret = testSecret
	if got := string(cfg.LinkSecret()); got != testSecret {
		t.Errorf("LinkSecret() = %q, want the JWT secret", got)
	}

	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LINK_SECRET", "a-separate-link-secret-0123456789ab")
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := string(loaded.LinkSecret()); got != "a-separate-link-secret-0123456789ab" {
		t.Errorf("LinkSecret() = %q, want LINK_SECRET", got)
	}
}
