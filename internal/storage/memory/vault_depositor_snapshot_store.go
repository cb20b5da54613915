package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// VaultDepositorSnapshotStore is an in-memory implementation of storage.VaultDepositorSnapshotStore.
type VaultDepositorSnapshotStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.VaultDepositorSnapshot // keyed by vault|depositor|slot
	nextID int64
}

// NewVaultDepositorSnapshotStore creates a new in-memory vault depositor snapshot store.
func NewVaultDepositorSnapshotStore() *VaultDepositorSnapshotStore {
	return &VaultDepositorSnapshotStore{
		data:   make(map[string]*domain.VaultDepositorSnapshot),
		nextID: 1,
	}
}

// Compile-time interface check.
var _ storage.VaultDepositorSnapshotStore = (*VaultDepositorSnapshotStore)(nil)

func depositorSnapshotKey(vault, depositor string, slot int64) string {
	return fmt.Sprintf("%s|%s|%d", vault, depositor, slot)
}

func cloneDepositorSnapshot(snap *domain.VaultDepositorSnapshot) *domain.VaultDepositorSnapshot {
	c := *snap
	c.OraclePrice = bigCopy(snap.OraclePrice)
	c.Shares = bigCopy(snap.Shares)
	c.NetDeposits = bigCopy(snap.NetDeposits)
	c.TotalDeposits = bigCopy(snap.TotalDeposits)
	c.TotalWithdraws = bigCopy(snap.TotalWithdraws)
	c.CumulativeProfitSharePaid = bigCopy(snap.CumulativeProfitSharePaid)
	c.LastWithdrawRequestShares = bigCopy(snap.LastWithdrawRequestShares)
	c.LastWithdrawRequestValue = bigCopy(snap.LastWithdrawRequestValue)
	return &c
}

// InsertBulk adds multiple snapshots, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *VaultDepositorSnapshotStore) InsertBulk(_ context.Context, snaps []*domain.VaultDepositorSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, snap := range snaps {
		if snap == nil || snap.Vault == "" || snap.Depositor == "" {
			return 0, storage.ErrInvalidInput
		}
		key := depositorSnapshotKey(snap.Vault, snap.Depositor, snap.Slot)
		if _, exists := s.data[key]; exists {
			continue
		}
		c := cloneDepositorSnapshot(snap)
		c.ID = s.nextID
		s.nextID++
		s.data[key] = c
		inserted++
	}

	return inserted, nil
}

// GetByVaultDepositor retrieves snapshots for one (vault, depositor) pair, ordered by slot ASC.
func (s *VaultDepositorSnapshotStore) GetByVaultDepositor(_ context.Context, vault, depositor string) ([]*domain.VaultDepositorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*domain.VaultDepositorSnapshot
	for _, snap := range s.data {
		if snap.Vault == vault && snap.Depositor == depositor {
			snaps = append(snaps, cloneDepositorSnapshot(snap))
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Slot != snaps[j].Slot {
			return snaps[i].Slot < snaps[j].Slot
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps, nil
}

// Latest returns the most recent snapshot for a (vault, depositor) pair.
// Returns ErrNotFound when none exists.
func (s *VaultDepositorSnapshotStore) Latest(_ context.Context, vault, depositor string) (*domain.VaultDepositorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.VaultDepositorSnapshot
	for _, snap := range s.data {
		if snap.Vault != vault || snap.Depositor != depositor {
			continue
		}
		if latest == nil || snap.Slot > latest.Slot {
			latest = snap
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return cloneDepositorSnapshot(latest), nil
}
