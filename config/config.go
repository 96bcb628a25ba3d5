package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the daemon's runtime settings.
type Config struct {
	ChainID           uint64 `toml:"ChainID"`
	RPCAddress        string `toml:"RPCAddress"`
	MetricsAddress    string `toml:"MetricsAddress"`
	DataDir           string `toml:"DataDir"`
	StorageBackend    string `toml:"StorageBackend"`
	DefinitionsFile   string `toml:"DefinitionsFile"`
	ForwarderURL      string `toml:"ForwarderURL"`
	AuditDBPath       string `toml:"AuditDBPath"`
	TimeLockPeriodSec uint64 `toml:"TimeLockPeriodSec"`
	Owner             string `toml:"Owner"`
	Broadcaster       string `toml:"Broadcaster"`
	Recovery          string `toml:"Recovery"`
	VerifyingContract string `toml:"VerifyingContract"`
	AuthSecret        string `toml:"AuthSecret"`
	LogFile           string `toml:"LogFile"`
	Environment       string `toml:"Environment"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ChainID == 0 {
		cfg.ChainID = 1337
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8781"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9091"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.StorageBackend) == "" {
		cfg.StorageBackend = "leveldb"
	}
	if cfg.TimeLockPeriodSec == 0 {
		cfg.TimeLockPeriodSec = 3600
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

// Validate rejects configurations the daemon cannot safely start with.
func Validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.TimeLockPeriodSec == 0 {
		return fmt.Errorf("config: TimeLockPeriodSec must be positive")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Owner", cfg.Owner},
		{"Broadcaster", cfg.Broadcaster},
		{"Recovery", cfg.Recovery},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("config: %s address required", field.name)
		}
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
