// Package config holds the deployment-stage configuration for the security
// gateway. Values come from an optional YAML file with COMPASS_* environment
// overrides applied on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full recognized configuration surface.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	RateLimiting RateLimitingConfig `yaml:"rateLimiting"`
	FileUpload   FileUploadConfig   `yaml:"fileUpload"`
	Features     FeaturesConfig     `yaml:"features"`
	Identity     IdentityConfig     `yaml:"identity"`
	Database     DatabaseConfig     `yaml:"database"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type AuthConfig struct {
	SessionTimeout   time.Duration `yaml:"sessionTimeout"`
	MaxLoginAttempts int           `yaml:"maxLoginAttempts"`
}

// RateLimitRule is a fixed-window budget: MaxRequests per WindowMs.
type RateLimitRule struct {
	MaxRequests int `yaml:"maxRequests"`
	WindowMs    int `yaml:"windowMs"`
}

// Window returns the rule window as a duration.
func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

type APIRateLimits struct {
	Default RateLimitRule `yaml:"default"`
	Uploads RateLimitRule `yaml:"uploads"`
}

type RateLimitingConfig struct {
	API APIRateLimits `yaml:"api"`
}

type FileUploadConfig struct {
	MaxFileSize      int64    `yaml:"maxFileSize"`
	AllowedMimeTypes []string `yaml:"allowedMimeTypes"`
}

type FeaturesConfig struct {
	EnableAuditLogging bool `yaml:"enableAuditLogging"`
	EnableRateLimiting bool `yaml:"enableRateLimiting"`
}

type IdentityConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	Timeout       time.Duration `yaml:"timeout"`
	SessionSecret string        `yaml:"-"` // env only, never from file
}

type DatabaseConfig struct {
	DSN string `yaml:"-"` // env only, never from file
}

// Default returns production-stage defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			SessionTimeout:   24 * time.Hour,
			MaxLoginAttempts: 5,
		},
		RateLimiting: RateLimitingConfig{
			API: APIRateLimits{
				Default: RateLimitRule{MaxRequests: 100, WindowMs: 60_000},
				Uploads: RateLimitRule{MaxRequests: 10, WindowMs: 60_000},
			},
		},
		FileUpload: FileUploadConfig{
			MaxFileSize: 10 << 20,
			AllowedMimeTypes: []string{
				"application/pdf",
				"image/jpeg",
				"image/png",
				"text/plain",
			},
		},
		Features: FeaturesConfig{
			EnableAuditLogging: true,
			EnableRateLimiting: true,
		},
		Identity: IdentityConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COMPASS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COMPASS_PG_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("COMPASS_IDENTITY_URL"); v != "" {
		c.Identity.BaseURL = v
	}
	if v := os.Getenv("COMPASS_SESSION_SECRET"); v != "" {
		c.Identity.SessionSecret = v
	}
	if v := os.Getenv("COMPASS_ENABLE_RATE_LIMITING"); v != "" {
		c.Features.EnableRateLimiting = parseBool(v, c.Features.EnableRateLimiting)
	}
	if v := os.Getenv("COMPASS_ENABLE_AUDIT_LOGGING"); v != "" {
		c.Features.EnableAuditLogging = parseBool(v, c.Features.EnableAuditLogging)
	}
	if v := os.Getenv("COMPASS_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.FileUpload.MaxFileSize = n
		}
	}
}

func parseBool(raw string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Auth.SessionTimeout <= 0 {
		return fmt.Errorf("config: auth.sessionTimeout must be positive")
	}
	if c.Auth.MaxLoginAttempts <= 0 {
		return fmt.Errorf("config: auth.maxLoginAttempts must be positive")
	}
	if c.Features.EnableRateLimiting {
		rule := c.RateLimiting.API.Default
		if rule.MaxRequests <= 0 || rule.WindowMs <= 0 {
			return fmt.Errorf("config: rateLimiting.api.default requires positive maxRequests and windowMs")
		}
		uploads := c.RateLimiting.API.Uploads
		if uploads.MaxRequests <= 0 || uploads.WindowMs <= 0 {
			return fmt.Errorf("config: rateLimiting.api.uploads requires positive maxRequests and windowMs")
		}
	}
	if c.FileUpload.MaxFileSize <= 0 {
		return fmt.Errorf("config: fileUpload.maxFileSize must be positive")
	}
	if len(c.FileUpload.AllowedMimeTypes) == 0 {
		return fmt.Errorf("config: fileUpload.allowedMimeTypes must not be empty")
	}
	return nil
}
