package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"ddbox/crypto"
)

// Config is the node configuration for a single contract instance.
type Config struct {
	DataDir         string    `toml:"DataDir"`
	ContractAddress string    `toml:"ContractAddress"`
	Environment     string    `toml:"Environment"`
	ServiceName     string    `toml:"ServiceName"`
	ReceiptsDSN     string    `toml:"ReceiptsDSN"`
	AllowMigrate    bool      `toml:"AllowMigrate"`
	Logging         Logging   `toml:"logging"`
	Ops             Ops       `toml:"ops"`
	Telemetry       Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ddbox-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "ddbox"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Ops.RequestsPerSecond == 0 {
		cfg.Ops.RequestsPerSecond = 10
	}
	if cfg.Ops.Burst == 0 {
		cfg.Ops.Burst = 20
	}
}

// createDefault creates and saves a default configuration file bound to a
// freshly generated contract address.
func createDefault(path string) (*Config, error) {
	contract, err := newContractAddress()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		DataDir:         filepath.Join(filepath.Dir(path), "ddbox-data"),
		ContractAddress: contract,
		ReceiptsDSN:     filepath.Join(filepath.Dir(path), "receipts.db"),
		Ops:             Ops{ListenAddress: "127.0.0.1:9464"},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newContractAddress() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate contract address: %w", err)
	}
	addr, err := crypto.NewAddress(crypto.ContractPrefix, raw)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
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
