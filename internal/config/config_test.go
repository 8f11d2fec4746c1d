package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnvOverridesTaggedFields(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	env := map[string]string{
		"DATABASE_URL":  "postgres://u:p@db:5432/portal",
		"SERVER_PORT":   "9090",
		"OTP_TTL":       "2m",
		"SMTP_PORT":     "2525",
		"COOKIE_SECURE": "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	if err := loadFromEnv(cfg, lookup); err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}

	if cfg.Database.URL != env["DATABASE_URL"] {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.OTP.TTL != 2*time.Minute {
		t.Errorf("otp ttl = %v", cfg.OTP.TTL)
	}
	if cfg.SMTP.Port != 2525 {
		t.Errorf("smtp port = %d", cfg.SMTP.Port)
	}
	if !cfg.Server.CookieSecure {
		t.Error("cookie secure not applied")
	}
	// untouched fields keep their defaults
	if cfg.Database.Path != "instance/portal.db" {
		t.Errorf("path default lost: %q", cfg.Database.Path)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	cfg := &Config{}
	lookup := func(k string) (string, bool) {
		if k == "OTP_LENGTH" {
			return "six", true
		}
		return "", false
	}
	if err := loadFromEnv(cfg, lookup); err == nil {
		t.Fatal("expected an error for a non-numeric OTP_LENGTH")
	}
}

func TestLoadConfigReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "7000"
  session_secret: "from-file"
database:
  path: "data/local.db"
otp:
  ttl: 90s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SERVER_PORT", "7001")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != "7001" {
		t.Errorf("env should win over file, got %q", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/local.db" {
		t.Errorf("path = %q", cfg.Database.Path)
	}
	if cfg.OTP.TTL != 90*time.Second {
		t.Errorf("ttl = %v", cfg.OTP.TTL)
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected missing session secret to fail")
	}
	cfg.Server.SessionSecret = "s3cret"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.OTP.Length = 2
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected short otp length to fail")
	}
}
