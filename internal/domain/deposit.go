package domain

import "math/big"

// DepositRecord is a spot-market deposit or withdrawal row fetched from the
// history server. Corresponds to deposit_records table in PostgreSQL.
type DepositRecord struct {
	ID          int64    // BIGSERIAL primary key
	Ts          int64    // Unix timestamp in seconds
	TxSignature string   // Solana transaction signature
	TxIndex     int      // index of the record within the transaction
	Slot        int64    // Solana slot number
	User        string   // user account address
	Direction   string   // "deposit" | "withdraw"
	MarketIndex int      // spot market index
	Amount      *big.Int // token amount at the market's native precision
	OraclePrice *big.Int // price-precision oracle price at record time
	CreatedAt   int64    // record creation timestamp (sec)
}

// Deposit record directions.
const (
	DirectionDeposit  = "deposit"
	DirectionWithdraw = "withdraw"
)
