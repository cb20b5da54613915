package snapshotter

import (
	"context"
	"log"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// DefaultChunkSize bounds a single insert statement's parameter count.
const DefaultChunkSize = 500

// TimeseriesMirror receives a copy of every successfully inserted vault
// snapshot chunk for chart serving. Mirror failures are logged, never fatal.
type TimeseriesMirror interface {
	InsertBulk(ctx context.Context, snaps []*domain.VaultSnapshot) error
}

// Writer persists computed snapshot rows in bounded chunks. A failed chunk is
// logged with its offset range and skipped; previously written chunks are not
// rolled back, so a partial run leaves visible gaps for the operator to
// re-backfill.
type Writer struct {
	snapshots          storage.VaultSnapshotStore
	depositorSnapshots storage.VaultDepositorSnapshotStore
	mirror             TimeseriesMirror // optional
	chunkSize          int
	logger             *log.Logger
}

// NewWriter creates a Writer with the default chunk size.
func NewWriter(
	snapshots storage.VaultSnapshotStore,
	depositorSnapshots storage.VaultDepositorSnapshotStore,
	logger *log.Logger,
) *Writer {
	return &Writer{
		snapshots:          snapshots,
		depositorSnapshots: depositorSnapshots,
		chunkSize:          DefaultChunkSize,
		logger:             logger,
	}
}

// WithChunkSize overrides the chunk size (tests only use small sizes).
func (w *Writer) WithChunkSize(n int) *Writer {
	if n > 0 {
		w.chunkSize = n
	}
	return w
}

// WithMirror attaches a timeseries mirror for chart serving.
func (w *Writer) WithMirror(m TimeseriesMirror) *Writer {
	w.mirror = m
	return w
}

// WriteVaultSnapshots inserts snapshot rows in chunks. Returns the number of
// rows inserted and the number of chunks that failed.
func (w *Writer) WriteVaultSnapshots(ctx context.Context, snaps []*domain.VaultSnapshot) (int, int) {
	inserted := 0
	failedChunks := 0

	for offset := 0; offset < len(snaps); offset += w.chunkSize {
		end := offset + w.chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}
		chunk := snaps[offset:end]

		n, err := w.snapshots.InsertBulk(ctx, chunk)
		if err != nil {
			failedChunks++
			w.logger.Printf("vault snapshot chunk [%d:%d] failed after 1 attempt, skipping: %v", offset, end, err)
			continue
		}
		inserted += n

		if w.mirror != nil {
			if err := w.mirror.InsertBulk(ctx, chunk); err != nil {
				w.logger.Printf("timeseries mirror chunk [%d:%d] failed: %v", offset, end, err)
			}
		}
	}

	return inserted, failedChunks
}

// WriteDepositorSnapshots inserts depositor snapshot rows in chunks with the
// same partial-success semantics as WriteVaultSnapshots.
func (w *Writer) WriteDepositorSnapshots(ctx context.Context, snaps []*domain.VaultDepositorSnapshot) (int, int) {
	inserted := 0
	failedChunks := 0

	for offset := 0; offset < len(snaps); offset += w.chunkSize {
		end := offset + w.chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		n, err := w.depositorSnapshots.InsertBulk(ctx, snaps[offset:end])
		if err != nil {
			failedChunks++
			w.logger.Printf("depositor snapshot chunk [%d:%d] failed after 1 attempt, skipping: %v", offset, end, err)
			continue
		}
		inserted += n
	}

	return inserted, failedChunks
}
