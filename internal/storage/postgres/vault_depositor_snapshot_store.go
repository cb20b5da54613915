package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// VaultDepositorSnapshotStore implements storage.VaultDepositorSnapshotStore using PostgreSQL.
type VaultDepositorSnapshotStore struct {
	pool *Pool
}

// NewVaultDepositorSnapshotStore creates a new VaultDepositorSnapshotStore.
func NewVaultDepositorSnapshotStore(pool *Pool) *VaultDepositorSnapshotStore {
	return &VaultDepositorSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VaultDepositorSnapshotStore = (*VaultDepositorSnapshotStore)(nil)

const vaultDepositorSnapshotColumns = `
	id, vault, depositor, ts, slot, oracle_price,
	shares, net_deposits, total_deposits, total_withdraws,
	cumulative_profit_share_paid,
	last_withdraw_request_shares, last_withdraw_request_value, last_withdraw_request_ts,
	created_at
`

const insertVaultDepositorSnapshotQuery = `
	INSERT INTO vault_depositor_snapshots (
		vault, depositor, ts, slot, oracle_price,
		shares, net_deposits, total_deposits, total_withdraws,
		cumulative_profit_share_paid,
		last_withdraw_request_shares, last_withdraw_request_value, last_withdraw_request_ts,
		created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (vault, depositor, slot) DO NOTHING
`

// InsertBulk adds multiple snapshots, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *VaultDepositorSnapshotStore) InsertBulk(ctx context.Context, snaps []*domain.VaultDepositorSnapshot) (n int, err error) {
	if len(snaps) == 0 {
		return 0, nil
	}
	started := time.Now()
	defer func() { observe("vault_depositor_snapshots.insert_bulk", started, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().Unix()
	inserted := 0
	for _, snap := range snaps {
		if snap == nil || snap.Vault == "" || snap.Depositor == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, insertVaultDepositorSnapshotQuery,
			snap.Vault,
			snap.Depositor,
			snap.Ts,
			snap.Slot,
			bigText(snap.OraclePrice),
			bigText(snap.Shares),
			bigText(snap.NetDeposits),
			bigText(snap.TotalDeposits),
			bigText(snap.TotalWithdraws),
			bigText(snap.CumulativeProfitSharePaid),
			bigText(snap.LastWithdrawRequestShares),
			bigText(snap.LastWithdrawRequestValue),
			snap.LastWithdrawRequestTs,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert vault depositor snapshot in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetByVaultDepositor retrieves snapshots for one (vault, depositor) pair, ordered by slot ASC.
func (s *VaultDepositorSnapshotStore) GetByVaultDepositor(ctx context.Context, vault, depositor string) ([]*domain.VaultDepositorSnapshot, error) {
	query := `
		SELECT ` + vaultDepositorSnapshotColumns + `
		FROM vault_depositor_snapshots
		WHERE vault = $1 AND depositor = $2
		ORDER BY slot ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, vault, depositor)
	if err != nil {
		return nil, fmt.Errorf("get vault depositor snapshots: %w", err)
	}
	defer rows.Close()

	return scanVaultDepositorSnapshots(rows)
}

// Latest returns the most recent snapshot for a (vault, depositor) pair.
// Returns ErrNotFound when none exists.
func (s *VaultDepositorSnapshotStore) Latest(ctx context.Context, vault, depositor string) (*domain.VaultDepositorSnapshot, error) {
	query := `
		SELECT ` + vaultDepositorSnapshotColumns + `
		FROM vault_depositor_snapshots
		WHERE vault = $1 AND depositor = $2
		ORDER BY slot DESC, id DESC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, vault, depositor)
	if err != nil {
		return nil, fmt.Errorf("get latest vault depositor snapshot: %w", err)
	}
	defer rows.Close()

	snaps, err := scanVaultDepositorSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// scanVaultDepositorSnapshots scans multiple rows into a slice of VaultDepositorSnapshot.
func scanVaultDepositorSnapshots(rows pgx.Rows) ([]*domain.VaultDepositorSnapshot, error) {
	var snaps []*domain.VaultDepositorSnapshot

	for rows.Next() {
		var (
			snap                domain.VaultDepositorSnapshot
			price, shares       string
			nd, td, tw, cps     string
			wrShares, wrValue   string
		)

		err := rows.Scan(
			&snap.ID, &snap.Vault, &snap.Depositor, &snap.Ts, &snap.Slot, &price,
			&shares, &nd, &td, &tw, &cps,
			&wrShares, &wrValue, &snap.LastWithdrawRequestTs,
			&snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vault depositor snapshot: %w", err)
		}

		if snap.OraclePrice, err = parseBig("oracle_price", price); err != nil {
			return nil, err
		}
		if snap.Shares, err = parseBig("shares", shares); err != nil {
			return nil, err
		}
		if snap.NetDeposits, err = parseBig("net_deposits", nd); err != nil {
			return nil, err
		}
		if snap.TotalDeposits, err = parseBig("total_deposits", td); err != nil {
			return nil, err
		}
		if snap.TotalWithdraws, err = parseBig("total_withdraws", tw); err != nil {
			return nil, err
		}
		if snap.CumulativeProfitSharePaid, err = parseBig("cumulative_profit_share_paid", cps); err != nil {
			return nil, err
		}
		if snap.LastWithdrawRequestShares, err = parseBig("last_withdraw_request_shares", wrShares); err != nil {
			return nil, err
		}
		if snap.LastWithdrawRequestValue, err = parseBig("last_withdraw_request_value", wrValue); err != nil {
			return nil, err
		}

		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault depositor snapshots: %w", err)
	}

	return snaps, nil
}
