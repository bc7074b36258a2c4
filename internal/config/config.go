// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrFalAPIKeyRequired is returned when FAL_API_KEY is not set.
	ErrFalAPIKeyRequired = errors.New("config: FAL_API_KEY is required")
	// ErrPublicBaseURLRequired is returned when PUBLIC_BASE_URL is not set.
	ErrPublicBaseURLRequired = errors.New("config: PUBLIC_BASE_URL is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// PublicBaseURL is the externally reachable base URL of this service.
	// It is used to build the webhook callback address and local asset URLs.
	PublicBaseURL string `env:"PUBLIC_BASE_URL, required" json:"public_base_url"`

	// Generation service settings
	FalAPIKey  string `env:"FAL_API_KEY, required" json:"-"` // Masked in JSON
	FalModel   string `env:"FAL_MODEL, default=fal-ai/hunyuan-video/video-to-video" json:"fal_model"`
	FalBaseURL string `env:"FAL_BASE_URL, default=https://queue.fal.run" json:"fal_base_url"`

	// WebhookSecret enables HMAC verification of completion notifications
	// when set. Empty disables the check.
	WebhookSecret string `env:"WEBHOOK_SECRET" json:"-"` // Masked in JSON

	// Storage settings
	DataDir string `env:"DATA_DIR, default=/var/lib/restyle" json:"data_dir"`

	// Optional S3 settings; local disk storage is used when unset.
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// APITokens maps bearer tokens to owner IDs, e.g.
	// "tok-abc:user-1,tok-def:user-2".
	APITokens map[string]string `env:"API_TOKENS" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// WebhookURL returns the completion callback address handed to the
// generation service.
func (c *Config) WebhookURL() string {
	return strings.TrimSuffix(c.PublicBaseURL, "/") + "/jobs/webhook"
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "FAL_API_KEY") {
			return nil, ErrFalAPIKeyRequired
		}
		if strings.Contains(err.Error(), "PUBLIC_BASE_URL") {
			return nil, ErrPublicBaseURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.FalAPIKey == "" {
		return ErrFalAPIKeyRequired
	}
	if c.PublicBaseURL == "" {
		return ErrPublicBaseURLRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, PublicBaseURL: %s, FalModel: %s, DataDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PublicBaseURL,
		c.FalModel,
		c.DataDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
