package quota

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	quotas map[string]*Quota
}

// NewMemoryStore creates an in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotas: make(map[string]*Quota)}
}

func (s *MemoryStore) Create(ctx context.Context, q *Quota) error {
	if err := q.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *q
	s.quotas[c.ID] = &c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotas[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *q
	return &c, nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Quota
	for _, q := range s.quotas {
		if q.TenantID != tenantID {
			continue
		}
		c := *q
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PeriodStart.Equal(result[j].PeriodStart) {
			return result[i].PeriodStart.After(result[j].PeriodStart)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotas[id]; !ok {
		return ErrNotFound
	}
	delete(s.quotas, id)
	return nil
}
