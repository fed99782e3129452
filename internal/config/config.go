// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends selectable through DUEL_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds every tunable of the duel server.
type Config struct {
	Addr            string        `env:"DUEL_ADDR"             envDefault:":8080"`
	Debug           bool          `env:"DUEL_DEBUG"`
	LogFormat       string        `env:"DUEL_LOG_FORMAT"       envDefault:"console"`
	Store           string        `env:"DUEL_STORE"            envDefault:"memory"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	SQLitePath      string        `env:"DUEL_SQLITE_PATH"      envDefault:"tinyduel.db"`
	HandSize        int           `env:"DUEL_HAND_SIZE"        envDefault:"5"`
	LogLimit        int           `env:"DUEL_LOG_LIMIT"        envDefault:"200"`
	EnforceTurns    bool          `env:"DUEL_ENFORCE_TURNS"`
	CommitRetries   int           `env:"DUEL_COMMIT_RETRIES"   envDefault:"5"`
	AllowedOrigins  []string      `env:"DUEL_ALLOWED_ORIGINS"  envSeparator:","`
	Heartbeat       time.Duration `env:"DUEL_HEARTBEAT"        envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"DUEL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads an optional .env file, then the environment, and validates the
// result. A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be served.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Store == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("DUEL_SQLITE_PATH is required for the sqlite store")
	}
	if c.HandSize <= 0 {
		return fmt.Errorf("hand size must be positive, got %d", c.HandSize)
	}
	if c.LogLimit < 0 {
		return fmt.Errorf("log limit must not be negative, got %d", c.LogLimit)
	}
	if c.CommitRetries <= 0 {
		return fmt.Errorf("commit retries must be positive, got %d", c.CommitRetries)
	}
	return nil
}
