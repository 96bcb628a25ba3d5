package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.ChainID != 1337 {
		t.Fatalf("unexpected default chain id: %d", cfg.ChainID)
	}
	if cfg.StorageBackend != "leveldb" {
		t.Fatalf("unexpected default backend: %s", cfg.StorageBackend)
	}
	if cfg.TimeLockPeriodSec != 3600 {
		t.Fatalf("unexpected default time lock: %d", cfg.TimeLockPeriodSec)
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
ChainID = 42
RPCAddress = "127.0.0.1:9000"
StorageBackend = "bolt"
TimeLockPeriodSec = 600
Owner = "0x0000000000000000000000000000000000000001"
Broadcaster = "0x0000000000000000000000000000000000000002"
Recovery = "0x0000000000000000000000000000000000000003"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 42 || cfg.RPCAddress != "127.0.0.1:9000" || cfg.StorageBackend != "bolt" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	// Unset fields still receive defaults.
	if cfg.MetricsAddress == "" || cfg.DataDir == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StorageBackend:    "memory",
			TimeLockPeriodSec: 600,
			Owner:             "0x0000000000000000000000000000000000000001",
			Broadcaster:       "0x0000000000000000000000000000000000000002",
			Recovery:          "0x0000000000000000000000000000000000000003",
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.StorageBackend = "cassandra"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unknown backend must be rejected")
	}

	cfg = base()
	cfg.TimeLockPeriodSec = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("zero time lock must be rejected")
	}

	for _, clear := range []func(*Config){
		func(c *Config) { c.Owner = "" },
		func(c *Config) { c.Broadcaster = "" },
		func(c *Config) { c.Recovery = "" },
	} {
		cfg = base()
		clear(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("missing system address must be rejected")
		}
	}
}
