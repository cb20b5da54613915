// Package vaults holds the static vault registry and the on-chain vault
// account decoder.
package vaults

import (
	"fmt"
	"sort"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"circuit-vaults-service/internal/domain"
)

// Registry is the set of vaults the service tracks. It is built once at
// startup from static configuration and injected into every component that
// needs it; there is no process-wide instance.
type Registry struct {
	byAddress map[string]*domain.Vault
}

// NewRegistry validates the configured vaults and builds a registry.
// Vault addresses are PDAs and only need to be well-formed 32-byte keys;
// manager authorities are wallets and must additionally be valid curve points.
func NewRegistry(entries []domain.Vault) (*Registry, error) {
	r := &Registry{byAddress: make(map[string]*domain.Vault, len(entries))}

	for i := range entries {
		v := entries[i]
		if err := validateAddress(v.Address); err != nil {
			return nil, fmt.Errorf("vault %q: %w", v.Name, err)
		}
		if err := validateAuthority(v.Manager); err != nil {
			return nil, fmt.Errorf("vault %q manager: %w", v.Name, err)
		}
		if v.BasePrecisionExp < 0 {
			return nil, fmt.Errorf("vault %q: negative base precision exponent", v.Name)
		}
		if v.FeeFraction < 0 || v.FeeFraction >= 1 {
			return nil, fmt.Errorf("vault %q: fee fraction %v out of range", v.Name, v.FeeFraction)
		}
		if _, exists := r.byAddress[v.Address]; exists {
			return nil, fmt.Errorf("duplicate vault address %s", v.Address)
		}
		r.byAddress[v.Address] = &v
	}

	return r, nil
}

// Get returns the vault configured at address.
func (r *Registry) Get(address string) (*domain.Vault, bool) {
	v, ok := r.byAddress[address]
	return v, ok
}

// All returns every configured vault, ordered by name for stable iteration.
func (r *Registry) All() []*domain.Vault {
	out := make([]*domain.Vault, 0, len(r.byAddress))
	for _, v := range r.byAddress {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of configured vaults.
func (r *Registry) Len() int {
	return len(r.byAddress)
}

// validateAddress checks that s is a base58-encoded 32-byte key.
func validateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address %q is %d bytes, want 32", s, len(raw))
	}
	return nil
}

// validateAuthority checks that s decodes to a point on the ed25519 curve.
// Wallet authorities are real public keys; PDAs are not.
func validateAuthority(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address %q is %d bytes, want 32", s, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("address %q is not on the ed25519 curve", s)
	}
	return nil
}
