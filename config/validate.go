package config

import (
	"fmt"
	"math/big"
	"strings"

	"lendledger/crypto"
)

// Validate checks the loaded configuration for the mistakes that would
// otherwise only surface as runtime failures.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if strings.TrimSpace(cfg.OwnerAddress) == "" {
		return fmt.Errorf("config: OwnerAddress required")
	}
	if _, err := crypto.DecodeAddress(cfg.OwnerAddress); err != nil {
		return fmt.Errorf("config: invalid OwnerAddress: %w", err)
	}
	for i, alloc := range cfg.Genesis {
		if _, err := crypto.DecodeAddress(alloc.Address); err != nil {
			return fmt.Errorf("config: genesis entry %d: invalid address: %w", i, err)
		}
		for _, amount := range []string{alloc.Principal, alloc.Collateral} {
			trimmed := strings.TrimSpace(amount)
			if trimmed == "" {
				continue
			}
			parsed, ok := new(big.Int).SetString(trimmed, 10)
			if !ok || parsed.Sign() < 0 {
				return fmt.Errorf("config: genesis entry %d: invalid amount %q", i, amount)
			}
		}
	}
	return nil
}
