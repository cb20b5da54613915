package snapshotter

import (
	"fmt"
	"math/big"

	"circuit-vaults-service/internal/domain"
)

// ReplayEvents folds ordered depositor events up to and including cutoffTs
// into a ReconstructedVaultState. Events must arrive ordered by slot ASC,
// ts ASC; the cutoff filter is on timestamp, not slot.
//
// Only deposit and withdraw actions change state. Share counts use the
// vault-level before/after fields so the fold tracks the vault total rather
// than a single depositor. The result's share fields are approximate: on-chain
// profit-share application dilutes shares without emitting a depositor event,
// and this replay deliberately does not attempt to correct for that.
func ReplayEvents(events []*domain.VaultDepositorEvent, cutoffTs int64, manager string) (*domain.ReconstructedVaultState, error) {
	state := domain.NewReconstructedVaultState()
	managerShares := new(big.Int)

	for _, e := range events {
		if e.Ts > cutoffTs {
			continue
		}

		switch e.Action {
		case domain.ActionDeposit:
			if err := requireAmounts(e); err != nil {
				return nil, err
			}
			sharesAdded := new(big.Int).Sub(e.VaultSharesAfter, e.VaultSharesBefore)
			state.TotalShares.Add(state.TotalShares, sharesAdded)

			if e.Authority == manager {
				managerShares.Add(managerShares, sharesAdded)
				state.ManagerNetDeposits.Add(state.ManagerNetDeposits, e.Amount)
				state.ManagerTotalDeposits.Add(state.ManagerTotalDeposits, e.Amount)
			} else {
				state.NetDeposits.Add(state.NetDeposits, e.Amount)
				state.TotalDeposits.Add(state.TotalDeposits, e.Amount)
			}

		case domain.ActionWithdraw:
			if err := requireAmounts(e); err != nil {
				return nil, err
			}
			sharesRemoved := new(big.Int).Sub(e.VaultSharesBefore, e.VaultSharesAfter)
			state.TotalShares.Sub(state.TotalShares, sharesRemoved)

			if e.Authority == manager {
				managerShares.Sub(managerShares, sharesRemoved)
				state.ManagerNetDeposits.Sub(state.ManagerNetDeposits, e.Amount)
				state.ManagerTotalWithdraws.Add(state.ManagerTotalWithdraws, e.Amount)
			} else {
				state.NetDeposits.Sub(state.NetDeposits, e.Amount)
				state.TotalWithdraws.Add(state.TotalWithdraws, e.Amount)
			}

		default:
			// withdraw_request, cancel_withdraw_request and fee_payment do
			// not move funds or vault shares.
		}
	}

	state.UserShares.Sub(state.TotalShares, managerShares)
	return state, nil
}

// requireAmounts rejects events whose numeric fields never parsed; replaying
// over them would silently corrupt every downstream total.
func requireAmounts(e *domain.VaultDepositorEvent) error {
	if e.Amount == nil || e.VaultSharesBefore == nil || e.VaultSharesAfter == nil {
		return fmt.Errorf("event %s: missing numeric fields", e.TxSignature)
	}
	return nil
}
