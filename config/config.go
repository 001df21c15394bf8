// Package config loads the oracle's TOML configuration. A missing file is
// not an error: Load writes a dev-friendly default in its place, so a first
// run needs no setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/subclone/pcidss-oracle/crypto"
)

// Store backends the oracle can open.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"
)

// DefaultDevOCWPublicKey is Alice's well-known Substrate dev sr25519 public
// key. It authenticates the OCW in dev mode only; production configs must
// supply their own key.
const DefaultDevOCWPublicKey = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

// EnvOCWPublicKey overrides the configured OCW public key when set, so
// deployments can keep the key out of the config file.
const EnvOCWPublicKey = "OCW_PUBLIC_KEY"

type Config struct {
	RPCAddress          string `toml:"RPCAddress"`
	StoreBackend        string `toml:"StoreBackend"`
	DataDir             string `toml:"DataDir"`
	PostgresDSN         string `toml:"PostgresDSN"`
	DevMode             bool   `toml:"DevMode"`
	SeedFile            string `toml:"SeedFile"`
	OCWPublicKey        string `toml:"OCWPublicKey"`
	SubmitRatePerMinute int    `toml:"SubmitRatePerMinute"`
	TrustProxyHeaders   bool   `toml:"TrustProxyHeaders"`
	LogFile             string `toml:"LogFile"`
	Environment         string `toml:"Environment"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if env := strings.TrimSpace(os.Getenv(EnvOCWPublicKey)); env != "" {
		cfg.OCWPublicKey = env
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":3030"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		if cfg.DevMode {
			cfg.Environment = "dev"
		} else {
			cfg.Environment = "prod"
		}
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case "":
		cfg.StoreBackend = BackendMemory
	case BackendMemory:
	case BackendLevelDB:
		if strings.TrimSpace(cfg.DataDir) == "" {
			cfg.DataDir = "./oracle-data"
		}
	case BackendPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return fmt.Errorf("store backend %q requires PostgresDSN", cfg.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.SubmitRatePerMinute < 0 {
		return fmt.Errorf("SubmitRatePerMinute must not be negative")
	}

	if strings.TrimSpace(cfg.OCWPublicKey) == "" {
		if !cfg.DevMode {
			return fmt.Errorf("OCWPublicKey required outside dev mode (set it in the config or via %s)", EnvOCWPublicKey)
		}
		cfg.OCWPublicKey = DefaultDevOCWPublicKey
	}
	if _, err := crypto.ParsePublicKey(cfg.OCWPublicKey); err != nil {
		return fmt.Errorf("invalid OCWPublicKey: %w", err)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:   ":3030",
		StoreBackend: BackendMemory,
		DevMode:      true,
		OCWPublicKey: DefaultDevOCWPublicKey,
		Environment:  "dev",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
