package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// VaultDepositorRecordStore is an in-memory implementation of storage.VaultDepositorRecordStore.
type VaultDepositorRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.VaultDepositorEvent // keyed by composite key
	nextID int64
}

// NewVaultDepositorRecordStore creates a new in-memory vault depositor record store.
func NewVaultDepositorRecordStore() *VaultDepositorRecordStore {
	return &VaultDepositorRecordStore{
		data:   make(map[string]*domain.VaultDepositorEvent),
		nextID: 1,
	}
}

// Compile-time interface check.
var _ storage.VaultDepositorRecordStore = (*VaultDepositorRecordStore)(nil)

// recordKey generates a unique key for an event.
func recordKey(txSignature, vault, depositor, action string) string {
	return fmt.Sprintf("%s|%s|%s|%s", txSignature, vault, depositor, action)
}

func cloneEvent(e *domain.VaultDepositorEvent) *domain.VaultDepositorEvent {
	c := *e
	c.Amount = bigCopy(e.Amount)
	c.SharesBefore = bigCopy(e.SharesBefore)
	c.SharesAfter = bigCopy(e.SharesAfter)
	c.VaultSharesBefore = bigCopy(e.VaultSharesBefore)
	c.VaultSharesAfter = bigCopy(e.VaultSharesAfter)
	c.VaultEquityBefore = bigCopy(e.VaultEquityBefore)
	c.ProfitShareAmount = bigCopy(e.ProfitShareAmount)
	c.ManagementFeeAmount = bigCopy(e.ManagementFeeAmount)
	return &c
}

// Insert adds a new event. Returns ErrDuplicateKey if it already exists.
func (s *VaultDepositorRecordStore) Insert(_ context.Context, e *domain.VaultDepositorEvent) error {
	if e == nil || e.Vault == "" || e.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	key := recordKey(e.TxSignature, e.Vault, e.Depositor, e.Action)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	c := cloneEvent(e)
	c.ID = s.nextID
	s.nextID++
	s.data[key] = c
	return nil
}

// InsertBulk adds multiple events, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *VaultDepositorRecordStore) InsertBulk(_ context.Context, events []*domain.VaultDepositorEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range events {
		if e == nil || e.Vault == "" || e.TxSignature == "" {
			return 0, storage.ErrInvalidInput
		}
		key := recordKey(e.TxSignature, e.Vault, e.Depositor, e.Action)
		if _, exists := s.data[key]; exists {
			continue
		}
		c := cloneEvent(e)
		c.ID = s.nextID
		s.nextID++
		s.data[key] = c
		inserted++
	}

	return inserted, nil
}

// GetByVault retrieves all events for a vault, ordered by slot ASC, ts ASC.
func (s *VaultDepositorRecordStore) GetByVault(_ context.Context, vault string) ([]*domain.VaultDepositorEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.VaultDepositorEvent
	for _, e := range s.data {
		if e.Vault == vault {
			events = append(events, cloneEvent(e))
		}
	}

	sortEventsAsc(events)
	return events, nil
}

// GetByVaultPaged retrieves events for a vault (optionally filtered by
// depositor authority) newest-first, with limit/page pagination.
func (s *VaultDepositorRecordStore) GetByVaultPaged(_ context.Context, vault, authority string, limit, page int) ([]*domain.VaultDepositorEvent, error) {
	if limit <= 0 || page < 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*domain.VaultDepositorEvent
	for _, e := range s.data {
		if e.Vault == vault && (authority == "" || e.Authority == authority) {
			events = append(events, cloneEvent(e))
		}
	}

	sortEventsAsc(events)
	// Newest-first for serving.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	start := page * limit
	if start >= len(events) {
		return nil, nil
	}
	end := start + limit
	if end > len(events) {
		end = len(events)
	}
	return events[start:end], nil
}

// CountByVault returns the number of events matching GetByVaultPaged filters.
func (s *VaultDepositorRecordStore) CountByVault(_ context.Context, vault, authority string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.data {
		if e.Vault == vault && (authority == "" || e.Authority == authority) {
			count++
		}
	}
	return count, nil
}

// LatestSlot returns the highest slot recorded for a vault, or 0 when no events exist.
func (s *VaultDepositorRecordStore) LatestSlot(_ context.Context, vault string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	for _, e := range s.data {
		if e.Vault == vault && e.Slot > latest {
			latest = e.Slot
		}
	}
	return latest, nil
}

func sortEventsAsc(events []*domain.VaultDepositorEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Slot != events[j].Slot {
			return events[i].Slot < events[j].Slot
		}
		if events[i].Ts != events[j].Ts {
			return events[i].Ts < events[j].Ts
		}
		return events[i].ID < events[j].ID
	})
}
