package vaults

import (
	"encoding/json"
	"fmt"
	"os"

	"circuit-vaults-service/internal/domain"
)

// vaultConfig is the JSON shape of one registry entry.
type vaultConfig struct {
	Address          string  `json:"address"`
	Name             string  `json:"name"`
	Manager          string  `json:"manager"`
	MarketSymbol     string  `json:"marketSymbol"`
	BasePrecisionExp int     `json:"basePrecisionExp"`
	FeeFraction      float64 `json:"feeFraction"`
	USDPegged        bool    `json:"usdPegged"`
}

// LoadRegistry reads a JSON vault configuration file and builds a validated
// registry. The file holds an array of vault entries.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault config %s: %w", path, err)
	}

	var configs []vaultConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse vault config %s: %w", path, err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("vault config %s holds no vaults", path)
	}

	entries := make([]domain.Vault, 0, len(configs))
	for _, c := range configs {
		entries = append(entries, domain.Vault{
			Address:          c.Address,
			Name:             c.Name,
			Manager:          c.Manager,
			MarketSymbol:     c.MarketSymbol,
			BasePrecisionExp: c.BasePrecisionExp,
			FeeFraction:      c.FeeFraction,
			USDPegged:        c.USDPegged,
		})
	}

	return NewRegistry(entries)
}
