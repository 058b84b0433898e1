// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken    string        `env:"PIPEBOT_DISCORD_TOKEN"`
	InputFile       string        `env:"PIPEBOT_INPUT_FILE"`
	StoragePath     string        `env:"PIPEBOT_STORAGE_PATH" envDefault:"pipebot.json"`
	LogLevel        string        `env:"PIPEBOT_LOG_LEVEL" envDefault:"info"`
	LogFile         string        `env:"PIPEBOT_LOG_FILE"`
	EOFBackoff      time.Duration `env:"PIPEBOT_EOF_BACKOFF" envDefault:"50ms"`
	SendAttempts    int           `env:"PIPEBOT_SEND_ATTEMPTS" envDefault:"5"`
	SendRate        float64       `env:"PIPEBOT_SEND_RATE" envDefault:"5"`
	RestorePresence bool          `env:"PIPEBOT_RESTORE_PRESENCE" envDefault:"true"`
}

// Load reads .env when present, then the process environment. A missing
// .env file is not an error.
func Load(files ...string) (*Config, bool, error) {
	dotenv := godotenv.Load(files...) == nil

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, dotenv, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, dotenv, nil
}

// LoadFrom parses configuration from vars only. Used by tests.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration once flags have been applied.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("missing token: set PIPEBOT_DISCORD_TOKEN or pass --token"))
	}
	if c.SendAttempts < 1 {
		errs = append(errs, fmt.Errorf("PIPEBOT_SEND_ATTEMPTS must be at least 1, got %d", c.SendAttempts))
	}
	if c.SendRate <= 0 {
		errs = append(errs, fmt.Errorf("PIPEBOT_SEND_RATE must be positive, got %v", c.SendRate))
	}
	if c.EOFBackoff < 0 {
		errs = append(errs, fmt.Errorf("PIPEBOT_EOF_BACKOFF must not be negative, got %v", c.EOFBackoff))
	}
	return errors.Join(errs...)
}
