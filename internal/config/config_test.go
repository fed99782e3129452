package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Store != StoreMemory {
		t.Fatalf("addr=%q store=%q", cfg.Addr, cfg.Store)
	}
	if cfg.HandSize != 5 || cfg.LogLimit != 200 || cfg.CommitRetries != 5 {
		t.Fatalf("hand=%d log=%d retries=%d", cfg.HandSize, cfg.LogLimit, cfg.CommitRetries)
	}
	if cfg.Heartbeat != 15*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("heartbeat=%v shutdown=%v", cfg.Heartbeat, cfg.ShutdownTimeout)
	}
	if cfg.EnforceTurns || cfg.Debug {
		t.Fatalf("expected permissive defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DUEL_STORE", " SQLite ")
	t.Setenv("DUEL_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("DUEL_ENFORCE_TURNS", "true")
	t.Setenv("DUEL_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("DUEL_HEARTBEAT", "2s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreSQLite || !cfg.EnforceTurns {
		t.Fatalf("store=%q enforce=%v", cfg.Store, cfg.EnforceTurns)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.Heartbeat != 2*time.Second {
		t.Fatalf("heartbeat = %v", cfg.Heartbeat)
	}
}

func TestLoadDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DUEL_HAND_SIZE=3\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DUEL_HAND_SIZE", "")
	os.Unsetenv("DUEL_HAND_SIZE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HandSize != 3 {
		t.Fatalf("hand size = %d, want 3", cfg.HandSize)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("DUEL_HAND_SIZE", "not-an-int")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreMemory, HandSize: 5, LogLimit: 10, CommitRetries: 1}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	unbounded := base
	unbounded.LogLimit = 0
	if err := unbounded.Validate(); err != nil {
		t.Fatalf("unbounded log rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"unknown store":    func(c *Config) { c.Store = "redis" },
		"postgres no dsn":  func(c *Config) { c.Store = StorePostgres },
		"sqlite no path":   func(c *Config) { c.Store = StoreSQLite },
		"zero hand":        func(c *Config) { c.HandSize = 0 },
		"negative log":     func(c *Config) { c.LogLimit = -1 },
		"negative retries": func(c *Config) { c.CommitRetries = -1 },
	}
	for name, mutate := range cases {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
