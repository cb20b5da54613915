package returns

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/domain"
)

func flow(ts, amount int64) domain.CashFlow {
	return domain.CashFlow{Ts: ts, Amount: big.NewInt(amount)}
}

func TestModifiedDietz_EmptyFlows(t *testing.T) {
	m := ModifiedDietz(big.NewInt(1000), big.NewInt(1100), nil, 0, 86400)
	assert.Zero(t, m.PeriodReturn)
	assert.Zero(t, m.APY)
}

func TestModifiedDietz_ZeroDenominator(t *testing.T) {
	// Zero begin value with a single fully-depreciated flow at period end:
	// weight 0, denominator 0.
	flows := []domain.CashFlow{flow(86400, 1000)}
	m := ModifiedDietz(big.NewInt(0), big.NewInt(500), flows, 0, 86400)
	assert.Zero(t, m.PeriodReturn)
	assert.Zero(t, m.APY)
}

func TestModifiedDietz_InvertedPeriod(t *testing.T) {
	m := ModifiedDietz(big.NewInt(1000), big.NewInt(1100), []domain.CashFlow{flow(0, 100)}, 100, 100)
	assert.Zero(t, m.PeriodReturn)
}

func TestModifiedDietz_TwoDepositsPositiveReturn(t *testing.T) {
	// 1000 deposited at period start, 500 at the 30-day midpoint, final
	// value 1600 after 60 days. Gain = 1600 - 0 - 1500 = 100.
	// Weighted flows = 1000*1.0 + 500*0.5 = 1250, return = 100/1250 = 8%.
	const days60 = 60 * 86400
	flows := []domain.CashFlow{
		flow(0, 1000),
		flow(30*86400, 500),
	}

	m := ModifiedDietz(big.NewInt(0), big.NewInt(1600), flows, 0, days60)
	require.InDelta(t, 0.08, m.PeriodReturn, 1e-9)
	assert.Greater(t, m.APY, 0.0)
	// 8% over 60 days annualizes to (1.08)^(365/60)-1.
	assert.InDelta(t, 0.597, m.APY, 0.01)
}

func TestModifiedDietz_WithdrawalNegativeFlow(t *testing.T) {
	// Begin 1000, withdraw 500 mid-period, end 520: gain = 520-1000+500 = 20.
	flows := []domain.CashFlow{flow(43200, -500)}
	m := ModifiedDietz(big.NewInt(1000), big.NewInt(520), flows, 0, 86400)
	assert.InDelta(t, 20.0/750.0, m.PeriodReturn, 1e-9)
}

func TestModifiedDietz_WeightClamping(t *testing.T) {
	// Flows outside the period are clamped to weight 1 (before start) and
	// 0 (after end) instead of skewing the denominator.
	flows := []domain.CashFlow{
		flow(-100, 1000), // before start, weight 1
		flow(90000, 500), // after end, weight 0
	}
	m := ModifiedDietz(big.NewInt(0), big.NewInt(1650), flows, 0, 86400)
	// Gain = 1650 - 1500 = 150, denom = 1000.
	assert.InDelta(t, 0.15, m.PeriodReturn, 1e-9)
}

func TestAnnualize_FlooredAtTotalLoss(t *testing.T) {
	assert.Equal(t, -1.0, Annualize(-1.5, 30*86400))
	assert.Equal(t, -1.0, Annualize(-1.0, 30*86400))
	assert.Zero(t, Annualize(0.5, 0))
}

func TestAnnualize_OneYearIdentity(t *testing.T) {
	assert.InDelta(t, 0.10, Annualize(0.10, 365*86400), 1e-9)
}

func TestApplyFee(t *testing.T) {
	assert.InDelta(t, 0.08, ApplyFee(0.10, 0.20), 1e-9)
	assert.InDelta(t, 0.10, ApplyFee(0.10, 0), 1e-9)
}

func TestBuildCashFlows_Signs(t *testing.T) {
	events := []*domain.VaultDepositorEvent{
		{Ts: 100, Action: domain.ActionDeposit, Amount: big.NewInt(1000)},
		{Ts: 200, Action: domain.ActionWithdraw, Amount: big.NewInt(400)},
		{Ts: 300, Action: domain.ActionWithdrawRequest, Amount: big.NewInt(999)},
		{Ts: 400, Action: domain.ActionFeePayment, Amount: big.NewInt(5)},
	}

	flows := BuildCashFlows(events)
	require.Len(t, flows, 2)
	assert.Equal(t, int64(1000), flows[0].Amount.Int64())
	assert.Equal(t, int64(-400), flows[1].Amount.Int64())
}
