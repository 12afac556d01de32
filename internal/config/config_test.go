package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	uploads := cfg.RateLimiting.API.Uploads
	if uploads.MaxRequests <= 0 || uploads.WindowMs <= 0 {
		t.Fatalf("default uploads rate limit not set: %+v", uploads)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	body := `
server:
  addr: ":9090"
auth:
  sessionTimeout: 1h
  maxLoginAttempts: 3
rateLimiting:
  api:
    default:
      maxRequests: 2
      windowMs: 1000
fileUpload:
  maxFileSize: 1048576
  allowedMimeTypes: ["application/pdf"]
features:
  enableAuditLogging: false
  enableRateLimiting: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Auth.SessionTimeout != time.Hour {
		t.Fatalf("unexpected session timeout: %v", cfg.Auth.SessionTimeout)
	}
	if cfg.Auth.MaxLoginAttempts != 3 {
		t.Fatalf("unexpected max login attempts: %d", cfg.Auth.MaxLoginAttempts)
	}
	if got := cfg.RateLimiting.API.Default.Window(); got != time.Second {
		t.Fatalf("unexpected window: %v", got)
	}
	if cfg.Features.EnableAuditLogging {
		t.Fatal("expected audit logging disabled")
	}
	if cfg.FileUpload.MaxFileSize != 1<<20 {
		t.Fatalf("unexpected max file size: %d", cfg.FileUpload.MaxFileSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COMPASS_ADDR", ":7070")
	t.Setenv("COMPASS_ENABLE_RATE_LIMITING", "false")
	t.Setenv("COMPASS_MAX_FILE_SIZE", "2048")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env addr not applied: %s", cfg.Server.Addr)
	}
	if cfg.Features.EnableRateLimiting {
		t.Fatal("expected rate limiting disabled via env")
	}
	if cfg.FileUpload.MaxFileSize != 2048 {
		t.Fatalf("env max file size not applied: %d", cfg.FileUpload.MaxFileSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = " " }},
		{"zero session timeout", func(c *Config) { c.Auth.SessionTimeout = 0 }},
		{"zero login attempts", func(c *Config) { c.Auth.MaxLoginAttempts = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimiting.API.Default.MaxRequests = 0 }},
		{"zero upload rate limit", func(c *Config) { c.RateLimiting.API.Uploads.WindowMs = 0 }},
		{"zero max file size", func(c *Config) { c.FileUpload.MaxFileSize = 0 }},
		{"no mime types", func(c *Config) { c.FileUpload.AllowedMimeTypes = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
