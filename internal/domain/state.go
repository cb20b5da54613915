package domain

import "math/big"

// ReconstructedVaultState is the result of replaying vault depositor events up
// to a cutoff timestamp. It is ephemeral: produced by the state reconstructor,
// consumed by snapshot computation, never persisted.
//
// Share counts are approximate: profit-share application on chain dilutes
// shares without emitting a depositor event, so replay cannot observe it.
type ReconstructedVaultState struct {
	TotalShares *big.Int
	UserShares  *big.Int

	NetDeposits    *big.Int
	TotalDeposits  *big.Int
	TotalWithdraws *big.Int

	ManagerNetDeposits    *big.Int
	ManagerTotalDeposits  *big.Int
	ManagerTotalWithdraws *big.Int
}

// NewReconstructedVaultState returns a state with all totals at zero.
func NewReconstructedVaultState() *ReconstructedVaultState {
	return &ReconstructedVaultState{
		TotalShares:           new(big.Int),
		UserShares:            new(big.Int),
		NetDeposits:           new(big.Int),
		TotalDeposits:         new(big.Int),
		TotalWithdraws:        new(big.Int),
		ManagerNetDeposits:    new(big.Int),
		ManagerTotalDeposits:  new(big.Int),
		ManagerTotalWithdraws: new(big.Int),
	}
}

// CashFlow is a signed external flow into (+) or out of (-) a vault, consumed
// only by the Modified Dietz return calculator.
type CashFlow struct {
	Ts     int64    // Unix timestamp in seconds
	Amount *big.Int // quote precision, deposits positive
}
