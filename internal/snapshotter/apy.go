package snapshotter

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/observability"
	"circuit-vaults-service/internal/returns"
	"circuit-vaults-service/internal/storage"
	"circuit-vaults-service/internal/vaults"
)

// APYEntry is one vault's cached performance figures.
type APYEntry struct {
	APY     float64 `json:"apy"`
	Returns float64 `json:"returns"`
}

// AppState is the injected cache of the latest APY computation. Readers get a
// copy; a cache that has never been filled reads as an empty map with a zero
// timestamp rather than an error.
type AppState struct {
	mu     sync.RWMutex
	vaults map[string]APYEntry
	ts     int64
}

// NewAppState creates an empty cache.
func NewAppState() *AppState {
	return &AppState{vaults: make(map[string]APYEntry)}
}

// Get returns a copy of the cached entries and the computation timestamp.
func (s *AppState) Get() (map[string]APYEntry, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]APYEntry, len(s.vaults))
	for k, v := range s.vaults {
		out[k] = v
	}
	return out, s.ts
}

// Set replaces the cached entries.
func (s *AppState) Set(entries map[string]APYEntry, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults = entries
	s.ts = ts
}

// APYCalculator recomputes Modified-Dietz figures for every configured vault
// and publishes them to the AppState cache.
type APYCalculator struct {
	registry *vaults.Registry
	records  storage.VaultDepositorRecordStore
	chain    ChainReader
	state    *AppState
	logger   *log.Logger
}

// NewAPYCalculator creates an APY calculator publishing into state.
func NewAPYCalculator(
	registry *vaults.Registry,
	records storage.VaultDepositorRecordStore,
	chain ChainReader,
	state *AppState,
	logger *log.Logger,
) *APYCalculator {
	return &APYCalculator{registry: registry, records: records, chain: chain, state: state, logger: logger}
}

// Refresh computes fee-adjusted APY and period return per vault over the full
// event history: the period opens at the first event and closes at the live
// equity read, with a zero opening valuation since the vault starts empty.
// A vault with no events contributes a zero entry. A vault whose read fails
// keeps its previously published entry, if any, and does not block siblings;
// only a refresh where every vault fails is an error.
func (c *APYCalculator) Refresh(ctx context.Context) error {
	prev, _ := c.state.Get()
	entries := make(map[string]APYEntry, c.registry.Len())
	now := time.Now().Unix()
	failed := 0

	for _, v := range c.registry.All() {
		entry, err := c.compute(ctx, v)
		if err != nil {
			failed++
			c.logger.Printf("vault %s: apy refresh failed: %v", v.Address, err)
			if old, ok := prev[v.Address]; ok {
				entries[v.Address] = old
			}
			continue
		}
		entries[v.Address] = entry
	}

	if n := c.registry.Len(); n > 0 && failed == n {
		return fmt.Errorf("all %d vaults failed", failed)
	}

	c.state.Set(entries, now)
	observability.DefaultMetrics.APYCacheAge.Set(0)
	return nil
}

func (c *APYCalculator) compute(ctx context.Context, v *domain.Vault) (APYEntry, error) {
	events, err := c.records.GetByVault(ctx, v.Address)
	if err != nil {
		return APYEntry{}, err
	}
	if len(events) == 0 {
		return APYEntry{}, nil
	}

	equity, err := c.chain.CurrentEquity(ctx, v)
	if err != nil {
		return APYEntry{}, err
	}

	flows := returns.BuildCashFlows(events)
	m := returns.ModifiedDietz(new(big.Int), equity.QuoteValue, flows, events[0].Ts, equity.Ts)

	return APYEntry{
		APY:     returns.ApplyFee(m.APY, v.FeeFraction),
		Returns: m.PeriodReturn,
	}, nil
}
