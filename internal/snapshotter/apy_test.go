package snapshotter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/storage/memory"
	"circuit-vaults-service/internal/vaults"
)

func newTestCalculator(registry *vaults.Registry, records *memory.VaultDepositorRecordStore, chain ChainReader, state *AppState) *APYCalculator {
	return NewAPYCalculator(registry, records, chain, state, discardLogger())
}

func seedVaultEvent(t *testing.T, records *memory.VaultDepositorRecordStore, vault string) {
	t.Helper()
	ev := depositEvent(100, 10, "UserA", 1_000_000, 0, 1000)
	ev.Vault = vault
	require.NoError(t, records.Insert(context.Background(), ev))
}

func TestAPYRefresh_PublishesEntries(t *testing.T) {
	registry := registryOf(t, 1)
	vault := registry.All()[0].Address

	records := memory.NewVaultDepositorRecordStore()
	seedVaultEvent(t, records, vault)

	chain := &fakeChain{equity: map[string]*vaults.Equity{vault: equityFor(500, 1000)}}
	state := NewAppState()
	calc := newTestCalculator(registry, records, chain, state)

	require.NoError(t, calc.Refresh(context.Background()))

	entries, ts := state.Get()
	require.Contains(t, entries, vault)
	assert.NotZero(t, ts)
}

func TestAPYRefresh_FailedVaultDoesNotBlockSiblings(t *testing.T) {
	registry := registryOf(t, 1, 2)
	good := registry.All()[0].Address
	bad := registry.All()[1].Address

	records := memory.NewVaultDepositorRecordStore()
	seedVaultEvent(t, records, good)
	seedVaultEvent(t, records, bad)

	chain := &fakeChain{
		equity:    map[string]*vaults.Equity{good: equityFor(500, 1000)},
		failUntil: map[string]int{bad: 99},
	}
	state := NewAppState()
	calc := newTestCalculator(registry, records, chain, state)

	require.NoError(t, calc.Refresh(context.Background()))

	entries, ts := state.Get()
	assert.NotZero(t, ts)
	assert.Contains(t, entries, good)
	// The failing vault has no prior entry to carry over.
	assert.NotContains(t, entries, bad)
}

func TestAPYRefresh_KeepsPreviousEntryForFailedVault(t *testing.T) {
	registry := registryOf(t, 1, 2)
	good := registry.All()[0].Address
	bad := registry.All()[1].Address

	records := memory.NewVaultDepositorRecordStore()
	seedVaultEvent(t, records, good)
	seedVaultEvent(t, records, bad)

	chain := &fakeChain{
		equity:    map[string]*vaults.Equity{good: equityFor(500, 1000)},
		failUntil: map[string]int{bad: 99},
	}
	state := NewAppState()
	state.Set(map[string]APYEntry{bad: {APY: 0.25, Returns: 0.04}}, 900)
	calc := newTestCalculator(registry, records, chain, state)

	require.NoError(t, calc.Refresh(context.Background()))

	entries, _ := state.Get()
	assert.InDelta(t, 0.25, entries[bad].APY, 1e-9)
	assert.Contains(t, entries, good)
}

func TestAPYRefresh_AllVaultsFailedIsError(t *testing.T) {
	registry := registryOf(t, 1)
	vault := registry.All()[0].Address

	records := memory.NewVaultDepositorRecordStore()
	seedVaultEvent(t, records, vault)

	chain := &fakeChain{failUntil: map[string]int{vault: 99}}
	state := NewAppState()
	calc := newTestCalculator(registry, records, chain, state)

	require.Error(t, calc.Refresh(context.Background()))

	// Nothing was published.
	_, ts := state.Get()
	assert.Zero(t, ts)
}

func TestAPYRefresh_NoEventsYieldsZeroEntry(t *testing.T) {
	registry := registryOf(t, 1)
	vault := registry.All()[0].Address

	chain := &fakeChain{}
	state := NewAppState()
	calc := newTestCalculator(registry, memory.NewVaultDepositorRecordStore(), chain, state)

	require.NoError(t, calc.Refresh(context.Background()))

	entries, _ := state.Get()
	assert.Equal(t, APYEntry{}, entries[vault])
	// The chain is never read for an empty event log.
	assert.Zero(t, chain.attempts[vault])
}
