package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the full service configuration, read from the environment.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Email        EmailConfig
	Resend       ResendConfig
	Verification VerificationConfig
	Logging      LoggingConfig
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	FrontendURL string `env:"VERIFY_FRONTEND_URL" env-default:"http://localhost:3000" validate:"required,url"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Format string `env:"VERIFY_LOG_FORMAT" env-default:"text" validate:"oneof=text json tint"`
	Level  string `env:"VERIFY_LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
}

// Load reads envFile when it exists, then the process environment, and
// validates the result. Variables already set in the environment win over
// the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Verification.Persistence == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("invalid config: VERIFY_DATABASE_URL is required for postgres persistence")
	}
	if c.Verification.Persistence == "file" && c.Verification.DataDir == "" {
		return fmt.Errorf("invalid config: VERIFY_DATA_DIR is required for file persistence")
	}
	if c.Verification.Notifier == "resend" && (c.Resend.APIKey == "" || c.Resend.From == "") {
		return fmt.Errorf("invalid config: RESEND_API_KEY and RESEND_FROM are required for the resend notifier")
	}
	return nil
}
