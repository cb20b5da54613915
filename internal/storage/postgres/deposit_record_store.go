package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// DepositRecordStore implements storage.DepositRecordStore using PostgreSQL.
type DepositRecordStore struct {
	pool *Pool
}

// NewDepositRecordStore creates a new DepositRecordStore.
func NewDepositRecordStore(pool *Pool) *DepositRecordStore {
	return &DepositRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DepositRecordStore = (*DepositRecordStore)(nil)

const depositRecordColumns = `
	id, ts, tx_signature, tx_index, slot, user_address, direction,
	market_index, amount, oracle_price, created_at
`

const insertDepositRecordQuery = `
	INSERT INTO deposit_records (
		ts, tx_signature, tx_index, slot, user_address, direction,
		market_index, amount, oracle_price, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (tx_signature, tx_index) DO NOTHING
`

// InsertBulk adds multiple records, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *DepositRecordStore) InsertBulk(ctx context.Context, records []*domain.DepositRecord) (n int, err error) {
	if len(records) == 0 {
		return 0, nil
	}
	started := time.Now()
	defer func() { observe("deposit_records.insert_bulk", started, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().Unix()
	inserted := 0
	for _, r := range records {
		if r == nil || r.User == "" || r.TxSignature == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, insertDepositRecordQuery,
			r.Ts,
			r.TxSignature,
			r.TxIndex,
			r.Slot,
			r.User,
			r.Direction,
			r.MarketIndex,
			bigText(r.Amount),
			bigText(r.OraclePrice),
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert deposit record in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetByUserPaged retrieves records for a user newest-first with limit/page pagination.
func (s *DepositRecordStore) GetByUserPaged(ctx context.Context, user string, limit, page int) ([]*domain.DepositRecord, error) {
	if limit <= 0 || page < 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + depositRecordColumns + `
		FROM deposit_records
		WHERE user_address = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, user, limit, page*limit)
	if err != nil {
		return nil, fmt.Errorf("get deposit records paged: %w", err)
	}
	defer rows.Close()

	return scanDepositRecords(rows)
}

// CountByUser returns the number of records for a user.
func (s *DepositRecordStore) CountByUser(ctx context.Context, user string) (int, error) {
	query := `SELECT COUNT(*) FROM deposit_records WHERE user_address = $1`

	var count int
	if err := s.pool.QueryRow(ctx, query, user).Scan(&count); err != nil {
		return 0, fmt.Errorf("count deposit records: %w", err)
	}
	return count, nil
}

// LatestTs returns the most recent record timestamp for a user, or 0 when no records exist.
func (s *DepositRecordStore) LatestTs(ctx context.Context, user string) (int64, error) {
	query := `SELECT COALESCE(MAX(ts), 0) FROM deposit_records WHERE user_address = $1`

	var ts int64
	if err := s.pool.QueryRow(ctx, query, user).Scan(&ts); err != nil {
		return 0, fmt.Errorf("latest deposit record ts: %w", err)
	}
	return ts, nil
}

// scanDepositRecords scans multiple rows into a slice of DepositRecord.
func scanDepositRecords(rows pgx.Rows) ([]*domain.DepositRecord, error) {
	var records []*domain.DepositRecord

	for rows.Next() {
		var (
			r             domain.DepositRecord
			amount, price string
		)

		err := rows.Scan(
			&r.ID, &r.Ts, &r.TxSignature, &r.TxIndex, &r.Slot, &r.User,
			&r.Direction, &r.MarketIndex, &amount, &price, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deposit record: %w", err)
		}

		if r.Amount, err = parseBig("amount", amount); err != nil {
			return nil, err
		}
		if r.OraclePrice, err = parseBig("oracle_price", price); err != nil {
			return nil, err
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deposit records: %w", err)
	}

	return records, nil
}
