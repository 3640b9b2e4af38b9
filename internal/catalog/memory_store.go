package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition // id → definition
}

// NewMemoryStore creates an in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		defs: make(map[string]*Definition),
	}
}

func (s *MemoryStore) Active(ctx context.Context, tenantID string) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Definition
	for _, d := range s.defs {
		if d.TenantID == tenantID && d.Active {
			copied := *d
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Weight != result[j].Weight {
			return result[i].Weight > result[j].Weight
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *MemoryStore) Create(ctx context.Context, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *def
	s.defs[def.ID] = &copied
	return nil
}

func (s *MemoryStore) Retire(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.defs[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = false
	return nil
}

func (s *MemoryStore) Seed(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.defs {
		if d.TenantID == tenantID {
			return nil // already seeded
		}
	}
	for _, d := range BuiltinDefinitions(tenantID) {
		s.defs[d.ID] = d
	}
	return nil
}
