package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/storage"
)

// DepositRecordStore is an in-memory implementation of storage.DepositRecordStore.
type DepositRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.DepositRecord // keyed by tx_signature|tx_index
	nextID int64
}

// NewDepositRecordStore creates a new in-memory deposit record store.
func NewDepositRecordStore() *DepositRecordStore {
	return &DepositRecordStore{
		data:   make(map[string]*domain.DepositRecord),
		nextID: 1,
	}
}

// Compile-time interface check.
var _ storage.DepositRecordStore = (*DepositRecordStore)(nil)

func depositKey(txSignature string, txIndex int) string {
	return fmt.Sprintf("%s|%d", txSignature, txIndex)
}

func cloneDeposit(r *domain.DepositRecord) *domain.DepositRecord {
	c := *r
	c.Amount = bigCopy(r.Amount)
	c.OraclePrice = bigCopy(r.OraclePrice)
	return &c
}

// InsertBulk adds multiple records, silently skipping duplicates.
// Returns the number of rows actually inserted.
func (s *DepositRecordStore) InsertBulk(_ context.Context, records []*domain.DepositRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		if r == nil || r.User == "" || r.TxSignature == "" {
			return 0, storage.ErrInvalidInput
		}
		key := depositKey(r.TxSignature, r.TxIndex)
		if _, exists := s.data[key]; exists {
			continue
		}
		c := cloneDeposit(r)
		c.ID = s.nextID
		s.nextID++
		s.data[key] = c
		inserted++
	}

	return inserted, nil
}

// GetByUserPaged retrieves records for a user newest-first with limit/page pagination.
func (s *DepositRecordStore) GetByUserPaged(_ context.Context, user string, limit, page int) ([]*domain.DepositRecord, error) {
	if limit <= 0 || page < 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.DepositRecord
	for _, r := range s.data {
		if r.User == user {
			records = append(records, cloneDeposit(r))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Ts != records[j].Ts {
			return records[i].Ts > records[j].Ts
		}
		return records[i].ID > records[j].ID
	})

	start := page * limit
	if start >= len(records) {
		return nil, nil
	}
	end := start + limit
	if end > len(records) {
		end = len(records)
	}
	return records[start:end], nil
}

// CountByUser returns the number of records for a user.
func (s *DepositRecordStore) CountByUser(_ context.Context, user string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.data {
		if r.User == user {
			count++
		}
	}
	return count, nil
}

// LatestTs returns the most recent record timestamp for a user, or 0 when no records exist.
func (s *DepositRecordStore) LatestTs(_ context.Context, user string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	for _, r := range s.data {
		if r.User == user && r.Ts > latest {
			latest = r.Ts
		}
	}
	return latest, nil
}
