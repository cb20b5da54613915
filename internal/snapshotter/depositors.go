package snapshotter

import (
	"math/big"
	"sort"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/vaults"
)

// depositorState accumulates one depositor's fold over the event history.
type depositorState struct {
	shares          *big.Int
	netDeposits     *big.Int
	totalDeposits   *big.Int
	totalWithdraws  *big.Int
	profitSharePaid *big.Int

	lastRequestShares *big.Int
	lastRequestValue  *big.Int
	lastRequestTs     int64
}

func newDepositorState() *depositorState {
	return &depositorState{
		shares:            new(big.Int),
		netDeposits:       new(big.Int),
		totalDeposits:     new(big.Int),
		totalWithdraws:    new(big.Int),
		profitSharePaid:   new(big.Int),
		lastRequestShares: new(big.Int),
		lastRequestValue:  new(big.Int),
	}
}

// buildDepositorSnapshots folds events up to the equity read time into one
// snapshot per depositor. Shares track the depositor-level after field of the
// latest event, so the same dilution approximation as the vault-level replay
// applies.
func buildDepositorSnapshots(events []*domain.VaultDepositorEvent, equity *vaults.Equity) []*domain.VaultDepositorSnapshot {
	states := make(map[string]*depositorState)

	for _, e := range events {
		if e.Ts > equity.Ts {
			continue
		}

		st, ok := states[e.Depositor]
		if !ok {
			st = newDepositorState()
			states[e.Depositor] = st
		}

		if e.ProfitShareAmount != nil {
			st.profitSharePaid.Add(st.profitSharePaid, e.ProfitShareAmount)
		}
		if e.SharesAfter != nil {
			st.shares.Set(e.SharesAfter)
		}

		switch e.Action {
		case domain.ActionDeposit:
			if e.Amount != nil {
				st.netDeposits.Add(st.netDeposits, e.Amount)
				st.totalDeposits.Add(st.totalDeposits, e.Amount)
			}

		case domain.ActionWithdraw:
			if e.Amount != nil {
				st.netDeposits.Sub(st.netDeposits, e.Amount)
				st.totalWithdraws.Add(st.totalWithdraws, e.Amount)
			}
			// Fulfilling a withdrawal clears the outstanding request.
			st.lastRequestShares.SetInt64(0)
			st.lastRequestValue.SetInt64(0)
			st.lastRequestTs = 0

		case domain.ActionWithdrawRequest:
			if e.SharesBefore != nil && e.SharesAfter != nil {
				st.lastRequestShares.Sub(e.SharesBefore, e.SharesAfter)
				st.lastRequestShares.Abs(st.lastRequestShares)
			}
			if e.Amount != nil {
				st.lastRequestValue.Set(e.Amount)
			}
			st.lastRequestTs = e.Ts

		case domain.ActionCancelWithdrawRequest:
			st.lastRequestShares.SetInt64(0)
			st.lastRequestValue.SetInt64(0)
			st.lastRequestTs = 0
		}
	}

	depositors := make([]string, 0, len(states))
	for d := range states {
		depositors = append(depositors, d)
	}
	sort.Strings(depositors)

	var vault string
	if len(events) > 0 {
		vault = events[0].Vault
	}

	out := make([]*domain.VaultDepositorSnapshot, 0, len(depositors))
	for _, d := range depositors {
		st := states[d]
		out = append(out, &domain.VaultDepositorSnapshot{
			Vault:                     vault,
			Depositor:                 d,
			Ts:                        equity.Ts,
			Slot:                      equity.Slot,
			OraclePrice:               equity.OraclePrice,
			Shares:                    st.shares,
			NetDeposits:               st.netDeposits,
			TotalDeposits:             st.totalDeposits,
			TotalWithdraws:            st.totalWithdraws,
			CumulativeProfitSharePaid: st.profitSharePaid,
			LastWithdrawRequestShares: st.lastRequestShares,
			LastWithdrawRequestValue:  st.lastRequestValue,
			LastWithdrawRequestTs:     st.lastRequestTs,
		})
	}

	return out
}
