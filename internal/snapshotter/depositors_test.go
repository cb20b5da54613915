package snapshotter

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/vaults"
)

func testEquity(slot, ts int64) *vaults.Equity {
	return &vaults.Equity{
		Slot:        slot,
		Ts:          ts,
		OraclePrice: big.NewInt(150_000_000),
		QuoteValue:  big.NewInt(5_000_000),
		BaseValue:   big.NewInt(33_333),
	}
}

func depositorEvent(ts int64, depositor, action string, amount, sharesBefore, sharesAfter int64) *domain.VaultDepositorEvent {
	return &domain.VaultDepositorEvent{
		Ts:           ts,
		TxSignature:  "Tx",
		Vault:        "Vault1",
		Depositor:    depositor,
		Authority:    depositor,
		Action:       action,
		Amount:       big.NewInt(amount),
		SharesBefore: big.NewInt(sharesBefore),
		SharesAfter:  big.NewInt(sharesAfter),
	}
}

func TestBuildDepositorSnapshots_Empty(t *testing.T) {
	snaps := buildDepositorSnapshots(nil, testEquity(100, 1000))
	assert.Empty(t, snaps)
}

func TestBuildDepositorSnapshots_PerDepositorFold(t *testing.T) {
	events := []*domain.VaultDepositorEvent{
		depositorEvent(100, "DepB", domain.ActionDeposit, 2_000_000, 0, 2000),
		depositorEvent(200, "DepA", domain.ActionDeposit, 1_000_000, 0, 1000),
		depositorEvent(300, "DepA", domain.ActionWithdraw, 400_000, 1000, 600),
	}

	snaps := buildDepositorSnapshots(events, testEquity(500, 1000))
	require.Len(t, snaps, 2)

	// Output is sorted by depositor address.
	a, b := snaps[0], snaps[1]
	assert.Equal(t, "DepA", a.Depositor)
	assert.Equal(t, "DepB", b.Depositor)

	assert.Equal(t, int64(600), a.Shares.Int64())
	assert.Equal(t, int64(600_000), a.NetDeposits.Int64())
	assert.Equal(t, int64(1_000_000), a.TotalDeposits.Int64())
	assert.Equal(t, int64(400_000), a.TotalWithdraws.Int64())

	assert.Equal(t, int64(2000), b.Shares.Int64())
	assert.Equal(t, int64(2_000_000), b.NetDeposits.Int64())

	// Snapshot carries the equity read point.
	assert.Equal(t, int64(500), a.Slot)
	assert.Equal(t, int64(1000), a.Ts)
	assert.Equal(t, "Vault1", a.Vault)
}

func TestBuildDepositorSnapshots_WithdrawRequestLifecycle(t *testing.T) {
	deposit := depositorEvent(100, "DepA", domain.ActionDeposit, 1_000_000, 0, 1000)
	request := depositorEvent(200, "DepA", domain.ActionWithdrawRequest, 300_000, 1000, 700)

	// An outstanding request records the share delta, value, and timestamp.
	snaps := buildDepositorSnapshots([]*domain.VaultDepositorEvent{deposit, request}, testEquity(500, 1000))
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(300), snaps[0].LastWithdrawRequestShares.Int64())
	assert.Equal(t, int64(300_000), snaps[0].LastWithdrawRequestValue.Int64())
	assert.Equal(t, int64(200), snaps[0].LastWithdrawRequestTs)

	// Fulfilling the withdrawal clears it.
	withdraw := depositorEvent(300, "DepA", domain.ActionWithdraw, 300_000, 700, 700)
	snaps = buildDepositorSnapshots([]*domain.VaultDepositorEvent{deposit, request, withdraw}, testEquity(500, 1000))
	require.Len(t, snaps, 1)
	assert.Zero(t, snaps[0].LastWithdrawRequestShares.Sign())
	assert.Zero(t, snaps[0].LastWithdrawRequestValue.Sign())
	assert.Zero(t, snaps[0].LastWithdrawRequestTs)

	// Cancelling clears it the same way.
	cancel := depositorEvent(300, "DepA", domain.ActionCancelWithdrawRequest, 0, 700, 1000)
	snaps = buildDepositorSnapshots([]*domain.VaultDepositorEvent{deposit, request, cancel}, testEquity(500, 1000))
	require.Len(t, snaps, 1)
	assert.Zero(t, snaps[0].LastWithdrawRequestShares.Sign())
	assert.Zero(t, snaps[0].LastWithdrawRequestTs)
}

func TestBuildDepositorSnapshots_EventsAfterEquityTsIgnored(t *testing.T) {
	events := []*domain.VaultDepositorEvent{
		depositorEvent(100, "DepA", domain.ActionDeposit, 1_000_000, 0, 1000),
		depositorEvent(2000, "DepA", domain.ActionDeposit, 9_000_000, 1000, 9999),
	}

	snaps := buildDepositorSnapshots(events, testEquity(500, 1000))
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(1000), snaps[0].Shares.Int64())
	assert.Equal(t, int64(1_000_000), snaps[0].TotalDeposits.Int64())
}

func TestBuildDepositorSnapshots_ProfitShareAccumulates(t *testing.T) {
	deposit := depositorEvent(100, "DepA", domain.ActionDeposit, 1_000_000, 0, 1000)
	fee := depositorEvent(200, "DepA", domain.ActionFeePayment, 0, 1000, 990)
	fee.ProfitShareAmount = big.NewInt(12_000)

	snaps := buildDepositorSnapshots([]*domain.VaultDepositorEvent{deposit, fee}, testEquity(500, 1000))
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(12_000), snaps[0].CumulativeProfitSharePaid.Int64())
	// Fee payments still track the depositor-level shares-after field.
	assert.Equal(t, int64(990), snaps[0].Shares.Int64())
}
