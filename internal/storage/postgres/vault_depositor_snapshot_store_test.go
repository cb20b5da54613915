package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

func testDepositorSnapshot(depositor string, slot, ts int64) *domain.VaultDepositorSnapshot {
	return &domain.VaultDepositorSnapshot{
		Vault:                     "DepSnapVault",
		Depositor:                 depositor,
		Ts:                        ts,
		Slot:                      slot,
		OraclePrice:               bi(150_000_000),
		Shares:                    bi(500),
		NetDeposits:               bi(1_000_000),
		TotalDeposits:             bi(1_500_000),
		TotalWithdraws:            bi(500_000),
		CumulativeProfitSharePaid: bi(10_000),
		LastWithdrawRequestShares: bi(100),
		LastWithdrawRequestValue:  bi(200_000),
		LastWithdrawRequestTs:     ts - 100,
	}
}

func TestVaultDepositorSnapshotStore_InsertBulkAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorSnapshotStore(pool)

	n, err := store.InsertBulk(ctx, []*domain.VaultDepositorSnapshot{
		testDepositorSnapshot("Dep1", 200, 2000),
		testDepositorSnapshot("Dep1", 100, 1000),
		testDepositorSnapshot("Dep2", 100, 1000),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snaps, err := store.GetByVaultDepositor(ctx, "DepSnapVault", "Dep1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(100), snaps[0].Slot)
	assert.Equal(t, int64(200), snaps[1].Slot)
	assert.Equal(t, 0, bi(10_000).Cmp(snaps[0].CumulativeProfitSharePaid))
	assert.Equal(t, 0, bi(100).Cmp(snaps[0].LastWithdrawRequestShares))
}

func TestVaultDepositorSnapshotStore_DuplicateSlotSkipped(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorSnapshotStore(pool)

	n, err := store.InsertBulk(ctx, []*domain.VaultDepositorSnapshot{testDepositorSnapshot("Dep1", 100, 1000)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.InsertBulk(ctx, []*domain.VaultDepositorSnapshot{testDepositorSnapshot("Dep1", 100, 1000)})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestVaultDepositorSnapshotStore_Latest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorSnapshotStore(pool)

	_, err := store.Latest(ctx, "DepSnapVault", "Dep1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.InsertBulk(ctx, []*domain.VaultDepositorSnapshot{
		testDepositorSnapshot("Dep1", 100, 1000),
		testDepositorSnapshot("Dep1", 300, 3000),
	})
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "DepSnapVault", "Dep1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), latest.Slot)
}
