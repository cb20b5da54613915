package snapshotter

import (
	"context"
	"errors"
	"fmt"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// Reader loads the inputs for one vault's snapshot computation: the full
// ordered event history and the most recent persisted snapshot, which bounds
// the reconstruction window.
type Reader struct {
	records   storage.VaultDepositorRecordStore
	snapshots storage.VaultSnapshotStore
}

// NewReader creates a new Reader.
func NewReader(records storage.VaultDepositorRecordStore, snapshots storage.VaultSnapshotStore) *Reader {
	return &Reader{records: records, snapshots: snapshots}
}

// Read returns all events for a vault oldest-first and the latest snapshot,
// nil when the vault has never been snapshotted. An empty event history is
// not an error; a store failure is fatal for the current run.
func (r *Reader) Read(ctx context.Context, vault string) ([]*domain.VaultDepositorEvent, *domain.VaultSnapshot, error) {
	events, err := r.records.GetByVault(ctx, vault)
	if err != nil {
		return nil, nil, fmt.Errorf("read events for %s: %w", vault, err)
	}

	latest, err := r.snapshots.Latest(ctx, vault)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return events, nil, nil
		}
		return nil, nil, fmt.Errorf("read latest snapshot for %s: %w", vault, err)
	}

	return events, latest, nil
}
