package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GenesisAlloc seeds one account with principal and collateral balances at
// first boot. Amounts are decimal strings in base units.
type GenesisAlloc struct {
	Address    string `toml:"Address"`
	Principal  string `toml:"Principal"`
	Collateral string `toml:"Collateral"`
}

type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	Environment  string `toml:"Environment"`
	LogLevel     string `toml:"LogLevel"`
	OwnerAddress string `toml:"OwnerAddress"`
	// ExchangeRate is the boot-time collateral rate with three implied
	// decimal digits (5000 = 5.0x). Only applied on first initialisation;
	// afterwards the stored parameters win.
	ExchangeRate uint64         `toml:"ExchangeRate"`
	Genesis      []GenesisAlloc `toml:"Genesis"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lend-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ExchangeRate == 0 {
		cfg.ExchangeRate = DefaultExchangeRate
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisAlloc{}
	}
}

// DefaultExchangeRate is the boot-time collateral rate used when the config
// omits one: collateral is worth five times the principal.
const DefaultExchangeRate = 5000

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:   ":8080",
		DataDir:      "./lend-data",
		Environment:  "local",
		LogLevel:     "info",
		ExchangeRate: DefaultExchangeRate,
		Genesis:      []GenesisAlloc{},
	}
	if err := persist(path, cfg); err != nil {
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
