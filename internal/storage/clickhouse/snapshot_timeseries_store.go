package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/observability"
)

// SnapshotTimeseriesStore mirrors vault snapshot rows into ClickHouse for
// chart serving. Canonical storage stays in PostgreSQL; this table tolerates
// re-inserts (ReplacingMergeTree keyed by vault, slot).
type SnapshotTimeseriesStore struct {
	conn *Conn
}

// NewSnapshotTimeseriesStore creates a new SnapshotTimeseriesStore.
func NewSnapshotTimeseriesStore(conn *Conn) *SnapshotTimeseriesStore {
	return &SnapshotTimeseriesStore{conn: conn}
}

// InsertBulk writes snapshot rows. Duplicate (vault, slot) pairs are collapsed
// by the table engine at merge time, so re-running a backfill is safe.
func (s *SnapshotTimeseriesStore) InsertBulk(ctx context.Context, snaps []*domain.VaultSnapshot) (err error) {
	if len(snaps) == 0 {
		return nil
	}
	started := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "vault_snapshots_ts.insert_bulk", time.Since(started).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vault_snapshots_ts (
			vault, ts, slot, oracle_price,
			total_account_quote_value, total_account_base_value, net_deposits
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		err := batch.Append(
			snap.Vault,
			snap.Ts,
			snap.Slot,
			bigText(snap.OraclePrice),
			bigText(snap.TotalAccountQuoteValue),
			bigText(snap.TotalAccountBaseValue),
			bigText(snap.NetDeposits),
		)
		if err != nil {
			return fmt.Errorf("append snapshot row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByVault retrieves snapshot rows for a vault ordered by slot ASC.
func (s *SnapshotTimeseriesStore) GetByVault(ctx context.Context, vault string) ([]*domain.VaultSnapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT vault, ts, slot, oracle_price,
		       total_account_quote_value, total_account_base_value, net_deposits
		FROM vault_snapshots_ts FINAL
		WHERE vault = ?
		ORDER BY slot ASC
	`, vault)
	if err != nil {
		return nil, fmt.Errorf("query vault snapshot timeseries: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.VaultSnapshot
	for rows.Next() {
		var (
			snap                    domain.VaultSnapshot
			price, quoteVal, basVal string
			nd                      string
		)
		if err := rows.Scan(&snap.Vault, &snap.Ts, &snap.Slot, &price, &quoteVal, &basVal, &nd); err != nil {
			return nil, fmt.Errorf("scan vault snapshot timeseries row: %w", err)
		}
		if snap.OraclePrice, err = parseBig(price); err != nil {
			return nil, err
		}
		if snap.TotalAccountQuoteValue, err = parseBig(quoteVal); err != nil {
			return nil, err
		}
		if snap.TotalAccountBaseValue, err = parseBig(basVal); err != nil {
			return nil, err
		}
		if snap.NetDeposits, err = parseBig(nd); err != nil {
			return nil, err
		}
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault snapshot timeseries: %w", err)
	}

	return snaps, nil
}

// bigText renders a big.Int for storage; nil is stored as "0".
func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseBig parses a stored decimal-text column back into a big.Int.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed decimal text %q", s)
	}
	return v, nil
}
