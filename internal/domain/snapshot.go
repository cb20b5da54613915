package domain

import "math/big"

// VaultSnapshot is a point-in-time summary of a vault's aggregate financial
// state. Corresponds to vault_snapshots table in PostgreSQL (mirrored to
// ClickHouse for chart serving). Snapshots for a vault are ordered by slot;
// rows are never mutated after insertion.
type VaultSnapshot struct {
	ID    int64  // BIGSERIAL primary key
	Vault string // vault account address
	Ts    int64  // Unix timestamp in seconds
	Slot  int64  // Solana slot number

	OraclePrice *big.Int // price-precision base/quote oracle price at capture

	TotalAccountQuoteValue *big.Int // vault equity in quote precision
	TotalAccountBaseValue  *big.Int // vault equity in base-asset precision

	// User-class cumulative totals. NetDeposits is the only field allowed
	// to decrease.
	NetDeposits    *big.Int
	TotalDeposits  *big.Int
	TotalWithdraws *big.Int

	// Manager-class cumulative totals.
	ManagerNetDeposits      *big.Int
	ManagerTotalDeposits    *big.Int
	ManagerTotalWithdraws   *big.Int
	ManagerTotalProfitShare *big.Int
	ManagerTotalFee         *big.Int

	UserShares  *big.Int
	TotalShares *big.Int

	CreatedAt int64 // record creation timestamp (sec)
}

// VaultDepositorSnapshot is a VaultSnapshot scoped to one (vault, depositor)
// pair. Corresponds to vault_depositor_snapshots table in PostgreSQL.
type VaultDepositorSnapshot struct {
	ID        int64
	Vault     string
	Depositor string // vault depositor account address
	Ts        int64
	Slot      int64

	OraclePrice *big.Int

	Shares         *big.Int
	NetDeposits    *big.Int
	TotalDeposits  *big.Int
	TotalWithdraws *big.Int

	CumulativeProfitSharePaid *big.Int

	// Last withdrawal request, zero-valued when none is outstanding.
	LastWithdrawRequestShares *big.Int
	LastWithdrawRequestValue  *big.Int
	LastWithdrawRequestTs     int64

	CreatedAt int64
}
