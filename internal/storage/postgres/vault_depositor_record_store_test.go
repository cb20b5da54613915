package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

func testEvent(txSig string, slot, ts int64, action string) *domain.VaultDepositorEvent {
	return &domain.VaultDepositorEvent{
		Ts:                  ts,
		TxSignature:         txSig,
		Slot:                slot,
		Vault:               "VaultAddr1",
		Depositor:           "DepositorAddr1",
		Authority:           "AuthorityAddr1",
		Action:              action,
		Amount:              bi(1_000_000),
		SharesBefore:        bi(0),
		SharesAfter:         bi(500),
		VaultSharesBefore:   bi(1000),
		VaultSharesAfter:    bi(1500),
		VaultEquityBefore:   bi(2_000_000),
		ProfitShareAmount:   bi(0),
		ManagementFeeAmount: bi(0),
	}
}

func TestVaultDepositorRecordStore_InsertAndGetByVault(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorRecordStore(pool)

	e := testEvent("Tx1", 100, 1000, domain.ActionDeposit)
	require.NoError(t, store.Insert(ctx, e))

	events, err := store.GetByVault(ctx, "VaultAddr1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, e.TxSignature, got.TxSignature)
	assert.Equal(t, e.Slot, got.Slot)
	assert.Equal(t, e.Action, got.Action)
	assert.Equal(t, 0, e.Amount.Cmp(got.Amount))
	assert.Equal(t, 0, e.VaultSharesAfter.Cmp(got.VaultSharesAfter))
	assert.Equal(t, 0, e.VaultEquityBefore.Cmp(got.VaultEquityBefore))
}

func TestVaultDepositorRecordStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorRecordStore(pool)

	e := testEvent("DupTx", 100, 1000, domain.ActionDeposit)
	require.NoError(t, store.Insert(ctx, e))

	err := store.Insert(ctx, e)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same signature but different action is a distinct event.
	other := testEvent("DupTx", 101, 1001, domain.ActionWithdrawRequest)
	assert.NoError(t, store.Insert(ctx, other))
}

func TestVaultDepositorRecordStore_InsertBulkSkipsDuplicates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorRecordStore(pool)

	require.NoError(t, store.Insert(ctx, testEvent("BulkTx1", 100, 1000, domain.ActionDeposit)))

	n, err := store.InsertBulk(ctx, []*domain.VaultDepositorEvent{
		testEvent("BulkTx1", 100, 1000, domain.ActionDeposit), // duplicate
		testEvent("BulkTx2", 101, 1001, domain.ActionDeposit),
		testEvent("BulkTx3", 102, 1002, domain.ActionWithdraw),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := store.CountByVault(ctx, "VaultAddr1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestVaultDepositorRecordStore_GetByVaultOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorRecordStore(pool)

	// Inserted out of order on purpose.
	_, err := store.InsertBulk(ctx, []*domain.VaultDepositorEvent{
		testEvent("OrdTx3", 300, 3000, domain.ActionDeposit),
		testEvent("OrdTx1", 100, 1000, domain.ActionDeposit),
		testEvent("OrdTx2", 200, 2000, domain.ActionDeposit),
	})
	require.NoError(t, err)

	events, err := store.GetByVault(ctx, "VaultAddr1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "OrdTx1", events[0].TxSignature)
	assert.Equal(t, "OrdTx2", events[1].TxSignature)
	assert.Equal(t, "OrdTx3", events[2].TxSignature)
}

func TestVaultDepositorRecordStore_GetByVaultPaged(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorRecordStore(pool)

	manager := testEvent("PagedTx1", 100, 1000, domain.ActionDeposit)
	manager.Authority = "ManagerAuth"
	user1 := testEvent("PagedTx2", 200, 2000, domain.ActionDeposit)
	user2 := testEvent("PagedTx3", 300, 3000, domain.ActionWithdraw)

	_, err := store.InsertBulk(ctx, []*domain.VaultDepositorEvent{manager, user1, user2})
	require.NoError(t, err)

	// Newest-first, no filter.
	events, err := store.GetByVaultPaged(ctx, "VaultAddr1", "", 2, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "PagedTx3", events[0].TxSignature)
	assert.Equal(t, "PagedTx2", events[1].TxSignature)

	// Second page.
	events, err = store.GetByVaultPaged(ctx, "VaultAddr1", "", 2, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "PagedTx1", events[0].TxSignature)

	// Authority filter.
	events, err = store.GetByVaultPaged(ctx, "VaultAddr1", "ManagerAuth", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "PagedTx1", events[0].TxSignature)

	count, err := store.CountByVault(ctx, "VaultAddr1", "ManagerAuth")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.GetByVaultPaged(ctx, "VaultAddr1", "", 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestVaultDepositorRecordStore_LatestSlot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVaultDepositorRecordStore(pool)

	slot, err := store.LatestSlot(ctx, "VaultAddr1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), slot)

	_, err = store.InsertBulk(ctx, []*domain.VaultDepositorEvent{
		testEvent("SlotTx1", 100, 1000, domain.ActionDeposit),
		testEvent("SlotTx2", 500, 5000, domain.ActionDeposit),
	})
	require.NoError(t, err)

	slot, err = store.LatestSlot(ctx, "VaultAddr1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), slot)
}
