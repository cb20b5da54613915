// Package returns computes vault performance figures from a valuation pair
// and a cash-flow series using the Modified Dietz method.
package returns

import (
	"math"
	"math/big"

	"circuit-vaults-service/internal/domain"
)

// SecondsPerDay is the period length unit for annualization.
const SecondsPerDay = 86400

// Metrics holds the output of a Modified Dietz computation.
// Both figures are fractions: 0.1 means +10%.
type Metrics struct {
	PeriodReturn float64 // return over [periodStart, periodEnd]
	APY          float64 // annualized, floored at -1
}

// ModifiedDietz computes the period return and APY for a vault.
//
// vBegin and vEnd are valuations at period start and end. Each cash flow is
// weighted by the fraction of the period remaining after it occurs:
//
//	w_i = (periodEnd - ts_i) / (periodEnd - periodStart)
//
// Gain is vEnd - vBegin - sum(CF); the period return is gain divided by
// (vBegin + sum(CF_i * w_i)). A zero denominator or an empty cash-flow list
// yields a zero return rather than an error, and the APY is floored at -1
// since a total loss cannot exceed -100%.
func ModifiedDietz(vBegin, vEnd *big.Int, flows []domain.CashFlow, periodStart, periodEnd int64) Metrics {
	if periodEnd <= periodStart {
		return Metrics{}
	}

	begin := bigFloat(vBegin)
	end := bigFloat(vEnd)
	periodLen := float64(periodEnd - periodStart)

	if len(flows) == 0 {
		return Metrics{}
	}

	var flowSum, weightedSum float64
	for _, cf := range flows {
		amount := bigFloat(cf.Amount)
		flowSum += amount

		w := float64(periodEnd-cf.Ts) / periodLen
		if w < 0 {
			w = 0
		} else if w > 1 {
			w = 1
		}
		weightedSum += amount * w
	}

	denom := begin + weightedSum
	if denom == 0 {
		return Metrics{}
	}

	gain := end - begin - flowSum
	periodReturn := gain / denom

	return Metrics{
		PeriodReturn: periodReturn,
		APY:          Annualize(periodReturn, periodEnd-periodStart),
	}
}

// Annualize converts a period return into an APY over the given period
// length in seconds, floored at -1.
func Annualize(periodReturn float64, periodSeconds int64) float64 {
	if periodSeconds <= 0 {
		return 0
	}
	days := float64(periodSeconds) / SecondsPerDay
	apy := math.Pow(1+periodReturn, 365/days) - 1
	if apy < -1 || math.IsNaN(apy) {
		apy = -1
	}
	return apy
}

// ApplyFee discounts a raw APY by a static per-vault fee fraction. This is a
// deliberate approximation; fees are not replayed from on-chain accrual.
func ApplyFee(apy, feeFraction float64) float64 {
	return apy * (1 - feeFraction)
}

// BuildCashFlows derives the Dietz cash-flow series from depositor events:
// deposits are positive, withdrawals negative, all other actions are skipped.
func BuildCashFlows(events []*domain.VaultDepositorEvent) []domain.CashFlow {
	var flows []domain.CashFlow
	for _, e := range events {
		switch e.Action {
		case domain.ActionDeposit:
			flows = append(flows, domain.CashFlow{Ts: e.Ts, Amount: bigOrZero(e.Amount)})
		case domain.ActionWithdraw:
			flows = append(flows, domain.CashFlow{Ts: e.Ts, Amount: new(big.Int).Neg(bigOrZero(e.Amount))})
		}
	}
	return flows
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
