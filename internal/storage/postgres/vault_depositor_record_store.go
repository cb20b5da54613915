package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// VaultDepositorRecordStore implements storage.VaultDepositorRecordStore using PostgreSQL.
type VaultDepositorRecordStore struct {
	pool *Pool
}

// NewVaultDepositorRecordStore creates a new VaultDepositorRecordStore.
func NewVaultDepositorRecordStore(pool *Pool) *VaultDepositorRecordStore {
	return &VaultDepositorRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VaultDepositorRecordStore = (*VaultDepositorRecordStore)(nil)

const vaultDepositorRecordColumns = `
	id, ts, tx_signature, slot, vault, depositor, authority, action, amount,
	shares_before, shares_after, vault_shares_before, vault_shares_after,
	vault_equity_before, profit_share_amount, management_fee_amount, created_at
`

const insertVaultDepositorRecordQuery = `
	INSERT INTO vault_depositor_records (
		ts, tx_signature, slot, vault, depositor, authority, action, amount,
		shares_before, shares_after, vault_shares_before, vault_shares_after,
		vault_equity_before, profit_share_amount, management_fee_amount, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (tx_signature, vault, depositor, action) DO NOTHING
`

func vaultDepositorRecordArgs(e *domain.VaultDepositorEvent, now int64) []interface{} {
	return []interface{}{
		e.Ts,
		e.TxSignature,
		e.Slot,
		e.Vault,
		e.Depositor,
		e.Authority,
		e.Action,
		bigText(e.Amount),
		bigText(e.SharesBefore),
		bigText(e.SharesAfter),
		bigText(e.VaultSharesBefore),
		bigText(e.VaultSharesAfter),
		bigText(e.VaultEquityBefore),
		bigText(e.ProfitShareAmount),
		bigText(e.ManagementFeeAmount),
		now,
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if (tx_signature, vault, depositor, action) exists.
func (s *VaultDepositorRecordStore) Insert(ctx context.Context, e *domain.VaultDepositorEvent) error {
	if e == nil || e.Vault == "" || e.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, insertVaultDepositorRecordQuery, vaultDepositorRecordArgs(e, time.Now().Unix())...)
	if err != nil {
		return fmt.Errorf("insert vault depositor record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// InsertBulk adds multiple events, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *VaultDepositorRecordStore) InsertBulk(ctx context.Context, events []*domain.VaultDepositorEvent) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	started := time.Now()
	defer func() { observe("vault_depositor_records.insert_bulk", started, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().Unix()
	inserted := 0
	for _, e := range events {
		if e == nil || e.Vault == "" || e.TxSignature == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, insertVaultDepositorRecordQuery, vaultDepositorRecordArgs(e, now)...)
		if err != nil {
			return 0, fmt.Errorf("insert vault depositor record in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetByVault retrieves all events for a vault, ordered by slot ASC, ts ASC.
func (s *VaultDepositorRecordStore) GetByVault(ctx context.Context, vault string) ([]*domain.VaultDepositorEvent, error) {
	query := `
		SELECT ` + vaultDepositorRecordColumns + `
		FROM vault_depositor_records
		WHERE vault = $1
		ORDER BY slot ASC, ts ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, vault)
	if err != nil {
		return nil, fmt.Errorf("get vault depositor records: %w", err)
	}
	defer rows.Close()

	return scanVaultDepositorEvents(rows)
}

// GetByVaultPaged retrieves events for a vault (optionally filtered by
// depositor authority) newest-first, with limit/page pagination.
func (s *VaultDepositorRecordStore) GetByVaultPaged(ctx context.Context, vault, authority string, limit, page int) ([]*domain.VaultDepositorEvent, error) {
	if limit <= 0 || page < 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + vaultDepositorRecordColumns + `
		FROM vault_depositor_records
		WHERE vault = $1 AND ($2 = '' OR authority = $2)
		ORDER BY slot DESC, ts DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.pool.Query(ctx, query, vault, authority, limit, page*limit)
	if err != nil {
		return nil, fmt.Errorf("get vault depositor records paged: %w", err)
	}
	defer rows.Close()

	return scanVaultDepositorEvents(rows)
}

// CountByVault returns the number of events matching GetByVaultPaged filters.
func (s *VaultDepositorRecordStore) CountByVault(ctx context.Context, vault, authority string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM vault_depositor_records
		WHERE vault = $1 AND ($2 = '' OR authority = $2)
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, vault, authority).Scan(&count); err != nil {
		return 0, fmt.Errorf("count vault depositor records: %w", err)
	}
	return count, nil
}

// LatestSlot returns the highest slot recorded for a vault, or 0 when no events exist.
func (s *VaultDepositorRecordStore) LatestSlot(ctx context.Context, vault string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(slot), 0)
		FROM vault_depositor_records
		WHERE vault = $1
	`

	var slot int64
	if err := s.pool.QueryRow(ctx, query, vault).Scan(&slot); err != nil {
		return 0, fmt.Errorf("latest vault depositor record slot: %w", err)
	}
	return slot, nil
}

// scanVaultDepositorEvents scans multiple rows into a slice of VaultDepositorEvent.
func scanVaultDepositorEvents(rows pgx.Rows) ([]*domain.VaultDepositorEvent, error) {
	var events []*domain.VaultDepositorEvent

	for rows.Next() {
		var (
			e       domain.VaultDepositorEvent
			amount  string
			sb, sa  string
			vsb, vs string
			veq     string
			ps, mf  string
		)

		err := rows.Scan(
			&e.ID, &e.Ts, &e.TxSignature, &e.Slot, &e.Vault, &e.Depositor,
			&e.Authority, &e.Action, &amount, &sb, &sa, &vsb, &vs,
			&veq, &ps, &mf, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vault depositor record: %w", err)
		}

		if e.Amount, err = parseBig("amount", amount); err != nil {
			return nil, err
		}
		if e.SharesBefore, err = parseBig("shares_before", sb); err != nil {
			return nil, err
		}
		if e.SharesAfter, err = parseBig("shares_after", sa); err != nil {
			return nil, err
		}
		if e.VaultSharesBefore, err = parseBig("vault_shares_before", vsb); err != nil {
			return nil, err
		}
		if e.VaultSharesAfter, err = parseBig("vault_shares_after", vs); err != nil {
			return nil, err
		}
		if e.VaultEquityBefore, err = parseBig("vault_equity_before", veq); err != nil {
			return nil, err
		}
		if e.ProfitShareAmount, err = parseBig("profit_share_amount", ps); err != nil {
			return nil, err
		}
		if e.ManagementFeeAmount, err = parseBig("management_fee_amount", mf); err != nil {
			return nil, err
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault depositor records: %w", err)
	}

	return events, nil
}
