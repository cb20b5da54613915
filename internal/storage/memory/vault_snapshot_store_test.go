package memory

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

func testSnapshot(vault string, slot, ts int64) *domain.VaultSnapshot {
	return &domain.VaultSnapshot{
		Vault:                  vault,
		Ts:                     ts,
		Slot:                   slot,
		OraclePrice:            big.NewInt(150_000_000),
		TotalAccountQuoteValue: big.NewInt(5_000_000),
		NetDeposits:            big.NewInt(4_000_000),
		TotalShares:            big.NewInt(1000),
	}
}

func TestVaultSnapshotStore_InsertBulkAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewVaultSnapshotStore()

	n, err := store.InsertBulk(ctx, []*domain.VaultSnapshot{
		testSnapshot("V1", 300, 3000),
		testSnapshot("V1", 100, 1000),
		testSnapshot("V1", 100, 1000), // duplicate (vault, slot)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snaps, err := store.GetByVault(ctx, "V1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(100), snaps[0].Slot)
	assert.Equal(t, int64(300), snaps[1].Slot)
}

func TestVaultSnapshotStore_RangeAndLatest(t *testing.T) {
	ctx := context.Background()
	store := NewVaultSnapshotStore()

	_, err := store.Latest(ctx, "V1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.InsertBulk(ctx, []*domain.VaultSnapshot{
		testSnapshot("V1", 100, 1000),
		testSnapshot("V1", 200, 2000),
		testSnapshot("V1", 300, 3000),
	})
	require.NoError(t, err)

	snaps, err := store.GetByVaultRange(ctx, "V1", 1000, 2000)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	latest, err := store.Latest(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), latest.Slot)
}
