package domain

import "math/big"

// VaultDepositorEvent is an immutable record of a single depositor action
// against a vault. Corresponds to vault_depositor_records table in PostgreSQL.
// Events for a vault are totally ordered by slot, ties broken by timestamp.
type VaultDepositorEvent struct {
	ID          int64    // BIGSERIAL primary key
	Ts          int64    // Unix timestamp in seconds
	TxSignature string   // Solana transaction signature (unique)
	Slot        int64    // Solana slot number
	Vault       string   // vault account address
	Depositor   string   // vault depositor account address
	Authority   string   // depositor authority (wallet) address
	Action      string   // one of the Action* constants
	Amount      *big.Int // quote-precision amount; direction encoded by Action

	// Depositor-level share counts around the event.
	SharesBefore *big.Int
	SharesAfter  *big.Int

	// Vault-level share counts around the event.
	VaultSharesBefore *big.Int
	VaultSharesAfter  *big.Int

	VaultEquityBefore   *big.Int // quote-precision vault equity before the event
	ProfitShareAmount   *big.Int // profit share charged by this event
	ManagementFeeAmount *big.Int // management fee charged by this event

	CreatedAt int64 // record creation timestamp (sec)
}

// Depositor action kinds.
const (
	ActionDeposit               = "deposit"
	ActionWithdraw              = "withdraw"
	ActionWithdrawRequest       = "withdraw_request"
	ActionCancelWithdrawRequest = "cancel_withdraw_request"
	ActionFeePayment            = "fee_payment"
)
