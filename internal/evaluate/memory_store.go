package evaluate

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory ProfileStore for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string][]*RiskProfile // opportunity id → profiles, oldest first
}

// NewMemoryStore creates an in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string][]*RiskProfile),
	}
}

func (s *MemoryStore) Record(ctx context.Context, profile *RiskProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.OpportunityID] = append(s.profiles[profile.OpportunityID], copyProfile(profile))
	return nil
}

func (s *MemoryStore) ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]*RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.profiles[opportunityID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Newest first
	result := make([]*RiskProfile, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyProfile(all[i]))
	}
	return result, nil
}

func copyProfile(p *RiskProfile) *RiskProfile {
	c := *p
	c.Risks = append(c.Risks[:0:0], p.Risks...)
	return &c
}
