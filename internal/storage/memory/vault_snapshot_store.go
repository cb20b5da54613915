package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// VaultSnapshotStore is an in-memory implementation of storage.VaultSnapshotStore.
type VaultSnapshotStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.VaultSnapshot // keyed by vault|slot
	nextID int64
}

// NewVaultSnapshotStore creates a new in-memory vault snapshot store.
func NewVaultSnapshotStore() *VaultSnapshotStore {
	return &VaultSnapshotStore{
		data:   make(map[string]*domain.VaultSnapshot),
		nextID: 1,
	}
}

// Compile-time interface check.
var _ storage.VaultSnapshotStore = (*VaultSnapshotStore)(nil)

func snapshotKey(vault string, slot int64) string {
	return fmt.Sprintf("%s|%d", vault, slot)
}

func cloneSnapshot(snap *domain.VaultSnapshot) *domain.VaultSnapshot {
	c := *snap
	c.OraclePrice = bigCopy(snap.OraclePrice)
	c.TotalAccountQuoteValue = bigCopy(snap.TotalAccountQuoteValue)
	c.TotalAccountBaseValue = bigCopy(snap.TotalAccountBaseValue)
	c.NetDeposits = bigCopy(snap.NetDeposits)
	c.TotalDeposits = bigCopy(snap.TotalDeposits)
	c.TotalWithdraws = bigCopy(snap.TotalWithdraws)
	c.ManagerNetDeposits = bigCopy(snap.ManagerNetDeposits)
	c.ManagerTotalDeposits = bigCopy(snap.ManagerTotalDeposits)
	c.ManagerTotalWithdraws = bigCopy(snap.ManagerTotalWithdraws)
	c.ManagerTotalProfitShare = bigCopy(snap.ManagerTotalProfitShare)
	c.ManagerTotalFee = bigCopy(snap.ManagerTotalFee)
	c.UserShares = bigCopy(snap.UserShares)
	c.TotalShares = bigCopy(snap.TotalShares)
	return &c
}

// InsertBulk adds multiple snapshots, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *VaultSnapshotStore) InsertBulk(_ context.Context, snaps []*domain.VaultSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, snap := range snaps {
		if snap == nil || snap.Vault == "" {
			return 0, storage.ErrInvalidInput
		}
		key := snapshotKey(snap.Vault, snap.Slot)
		if _, exists := s.data[key]; exists {
			continue
		}
		c := cloneSnapshot(snap)
		c.ID = s.nextID
		s.nextID++
		s.data[key] = c
		inserted++
	}

	return inserted, nil
}

// GetByVault retrieves all snapshots for a vault, ordered by slot ASC.
func (s *VaultSnapshotStore) GetByVault(_ context.Context, vault string) ([]*domain.VaultSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*domain.VaultSnapshot
	for _, snap := range s.data {
		if snap.Vault == vault {
			snaps = append(snaps, cloneSnapshot(snap))
		}
	}

	sortSnapshotsAsc(snaps)
	return snaps, nil
}

// GetByVaultRange retrieves snapshots for a vault within [start, end]
// timestamps (inclusive), ordered by slot ASC.
func (s *VaultSnapshotStore) GetByVaultRange(_ context.Context, vault string, start, end int64) ([]*domain.VaultSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*domain.VaultSnapshot
	for _, snap := range s.data {
		if snap.Vault == vault && snap.Ts >= start && snap.Ts <= end {
			snaps = append(snaps, cloneSnapshot(snap))
		}
	}

	sortSnapshotsAsc(snaps)
	return snaps, nil
}

// Latest returns the most recent snapshot for a vault.
// Returns ErrNotFound when none exists.
func (s *VaultSnapshotStore) Latest(_ context.Context, vault string) (*domain.VaultSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.VaultSnapshot
	for _, snap := range s.data {
		if snap.Vault != vault {
			continue
		}
		if latest == nil || snap.Slot > latest.Slot {
			latest = snap
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSnapshot(latest), nil
}

func sortSnapshotsAsc(snaps []*domain.VaultSnapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Slot != snaps[j].Slot {
			return snaps[i].Slot < snaps[j].Slot
		}
		return snaps[i].ID < snaps[j].ID
	})
}
