package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// VaultSnapshotStore implements storage.VaultSnapshotStore using PostgreSQL.
type VaultSnapshotStore struct {
	pool *Pool
}

// NewVaultSnapshotStore creates a new VaultSnapshotStore.
func NewVaultSnapshotStore(pool *Pool) *VaultSnapshotStore {
	return &VaultSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VaultSnapshotStore = (*VaultSnapshotStore)(nil)

const vaultSnapshotColumns = `
	id, vault, ts, slot, oracle_price,
	total_account_quote_value, total_account_base_value,
	net_deposits, total_deposits, total_withdraws,
	manager_net_deposits, manager_total_deposits, manager_total_withdraws,
	manager_total_profit_share, manager_total_fee,
	user_shares, total_shares, created_at
`

const insertVaultSnapshotQuery = `
	INSERT INTO vault_snapshots (
		vault, ts, slot, oracle_price,
		total_account_quote_value, total_account_base_value,
		net_deposits, total_deposits, total_withdraws,
		manager_net_deposits, manager_total_deposits, manager_total_withdraws,
		manager_total_profit_share, manager_total_fee,
		user_shares, total_shares, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (vault, slot) DO NOTHING
`

// InsertBulk adds multiple snapshots, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *VaultSnapshotStore) InsertBulk(ctx context.Context, snaps []*domain.VaultSnapshot) (n int, err error) {
	if len(snaps) == 0 {
		return 0, nil
	}
	started := time.Now()
	defer func() { observe("vault_snapshots.insert_bulk", started, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().Unix()
	inserted := 0
	for _, snap := range snaps {
		if snap == nil || snap.Vault == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, insertVaultSnapshotQuery,
			snap.Vault,
			snap.Ts,
			snap.Slot,
			bigText(snap.OraclePrice),
			bigText(snap.TotalAccountQuoteValue),
			bigText(snap.TotalAccountBaseValue),
			bigText(snap.NetDeposits),
			bigText(snap.TotalDeposits),
			bigText(snap.TotalWithdraws),
			bigText(snap.ManagerNetDeposits),
			bigText(snap.ManagerTotalDeposits),
			bigText(snap.ManagerTotalWithdraws),
			bigText(snap.ManagerTotalProfitShare),
			bigText(snap.ManagerTotalFee),
			bigText(snap.UserShares),
			bigText(snap.TotalShares),
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert vault snapshot in bulk: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetByVault retrieves all snapshots for a vault, ordered by slot ASC.
func (s *VaultSnapshotStore) GetByVault(ctx context.Context, vault string) ([]*domain.VaultSnapshot, error) {
	query := `
		SELECT ` + vaultSnapshotColumns + `
		FROM vault_snapshots
		WHERE vault = $1
		ORDER BY slot ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, vault)
	if err != nil {
		return nil, fmt.Errorf("get vault snapshots: %w", err)
	}
	defer rows.Close()

	return scanVaultSnapshots(rows)
}

// GetByVaultRange retrieves snapshots for a vault within [start, end]
// timestamps (inclusive), ordered by slot ASC.
func (s *VaultSnapshotStore) GetByVaultRange(ctx context.Context, vault string, start, end int64) ([]*domain.VaultSnapshot, error) {
	query := `
		SELECT ` + vaultSnapshotColumns + `
		FROM vault_snapshots
		WHERE vault = $1 AND ts >= $2 AND ts <= $3
		ORDER BY slot ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, vault, start, end)
	if err != nil {
		return nil, fmt.Errorf("get vault snapshots by range: %w", err)
	}
	defer rows.Close()

	return scanVaultSnapshots(rows)
}

// Latest returns the most recent snapshot for a vault.
// Returns ErrNotFound when none exists.
func (s *VaultSnapshotStore) Latest(ctx context.Context, vault string) (*domain.VaultSnapshot, error) {
	query := `
		SELECT ` + vaultSnapshotColumns + `
		FROM vault_snapshots
		WHERE vault = $1
		ORDER BY slot DESC, id DESC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, vault)
	if err != nil {
		return nil, fmt.Errorf("get latest vault snapshot: %w", err)
	}
	defer rows.Close()

	snaps, err := scanVaultSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// scanVaultSnapshots scans multiple rows into a slice of VaultSnapshot.
func scanVaultSnapshots(rows pgx.Rows) ([]*domain.VaultSnapshot, error) {
	var snaps []*domain.VaultSnapshot

	for rows.Next() {
		var (
			snap                    domain.VaultSnapshot
			price, quoteVal, basVal string
			nd, td, tw              string
			mnd, mtd, mtw, mps, mtf string
			us, ts                  string
		)

		err := rows.Scan(
			&snap.ID, &snap.Vault, &snap.Ts, &snap.Slot, &price,
			&quoteVal, &basVal, &nd, &td, &tw,
			&mnd, &mtd, &mtw, &mps, &mtf,
			&us, &ts, &snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vault snapshot: %w", err)
		}

		if snap.OraclePrice, err = parseBig("oracle_price", price); err != nil {
			return nil, err
		}
		if snap.TotalAccountQuoteValue, err = parseBig("total_account_quote_value", quoteVal); err != nil {
			return nil, err
		}
		if snap.TotalAccountBaseValue, err = parseBig("total_account_base_value", basVal); err != nil {
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
		if snap.ManagerNetDeposits, err = parseBig("manager_net_deposits", mnd); err != nil {
			return nil, err
		}
		if snap.ManagerTotalDeposits, err = parseBig("manager_total_deposits", mtd); err != nil {
			return nil, err
		}
		if snap.ManagerTotalWithdraws, err = parseBig("manager_total_withdraws", mtw); err != nil {
			return nil, err
		}
		if snap.ManagerTotalProfitShare, err = parseBig("manager_total_profit_share", mps); err != nil {
			return nil, err
		}
		if snap.ManagerTotalFee, err = parseBig("manager_total_fee", mtf); err != nil {
			return nil, err
		}
		if snap.UserShares, err = parseBig("user_shares", us); err != nil {
			return nil, err
		}
		if snap.TotalShares, err = parseBig("total_shares", ts); err != nil {
			return nil, err
		}

		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault snapshots: %w", err)
	}

	return snaps, nil
}
