package storage

import (
	"context"

	"circuit-vaults-service/internal/domain"
)

// VaultDepositorRecordStore provides access to vault_depositor_records storage.
type VaultDepositorRecordStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if (tx_signature, vault, depositor, action) exists.
	Insert(ctx context.Context, e *domain.VaultDepositorEvent) error

	// InsertBulk adds multiple events, silently skipping duplicates.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, events []*domain.VaultDepositorEvent) (int, error)

	// GetByVault retrieves all events for a vault, ordered by slot ASC, ts ASC.
	GetByVault(ctx context.Context, vault string) ([]*domain.VaultDepositorEvent, error)

	// GetByVaultPaged retrieves events for a vault (optionally filtered by
	// depositor authority) newest-first, with limit/page pagination.
	GetByVaultPaged(ctx context.Context, vault, authority string, limit, page int) ([]*domain.VaultDepositorEvent, error)

	// CountByVault returns the number of events matching GetByVaultPaged filters.
	CountByVault(ctx context.Context, vault, authority string) (int, error)

	// LatestSlot returns the highest slot recorded for a vault, or 0 when
	// no events exist.
	LatestSlot(ctx context.Context, vault string) (int64, error)
}

// VaultSnapshotStore provides access to vault_snapshots storage.
type VaultSnapshotStore interface {
	// InsertBulk adds multiple snapshots, silently skipping duplicates.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, snaps []*domain.VaultSnapshot) (int, error)

	// GetByVault retrieves all snapshots for a vault, ordered by slot ASC.
	GetByVault(ctx context.Context, vault string) ([]*domain.VaultSnapshot, error)

	// GetByVaultRange retrieves snapshots for a vault within [start, end]
	// timestamps (inclusive), ordered by slot ASC.
	GetByVaultRange(ctx context.Context, vault string, start, end int64) ([]*domain.VaultSnapshot, error)

	// Latest returns the most recent snapshot for a vault.
	// Returns ErrNotFound when none exists.
	Latest(ctx context.Context, vault string) (*domain.VaultSnapshot, error)
}

// VaultDepositorSnapshotStore provides access to vault_depositor_snapshots storage.
type VaultDepositorSnapshotStore interface {
	// InsertBulk adds multiple snapshots, silently skipping duplicates.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, snaps []*domain.VaultDepositorSnapshot) (int, error)

	// GetByVaultDepositor retrieves snapshots for one (vault, depositor)
	// pair, ordered by slot ASC.
	GetByVaultDepositor(ctx context.Context, vault, depositor string) ([]*domain.VaultDepositorSnapshot, error)

	// Latest returns the most recent snapshot for a (vault, depositor) pair.
	// Returns ErrNotFound when none exists.
	Latest(ctx context.Context, vault, depositor string) (*domain.VaultDepositorSnapshot, error)
}

// DepositRecordStore provides access to deposit_records storage.
type DepositRecordStore interface {
	// InsertBulk adds multiple records, silently skipping duplicates.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, records []*domain.DepositRecord) (int, error)

	// GetByUserPaged retrieves records for a user newest-first with
	// limit/page pagination.
	GetByUserPaged(ctx context.Context, user string, limit, page int) ([]*domain.DepositRecord, error)

	// CountByUser returns the number of records for a user.
	CountByUser(ctx context.Context, user string) (int, error)

	// LatestTs returns the most recent record timestamp for a user, or 0
	// when no records exist.
	LatestTs(ctx context.Context, user string) (int64, error)
}
