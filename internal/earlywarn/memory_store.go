package earlywarn

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	signals map[string][]*Signal // opportunity id → signals, oldest first
	seen    map[string]bool      // dedup key
}

// NewMemoryStore creates an in-memory signal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals: make(map[string][]*Signal),
		seen:    make(map[string]bool),
	}
}

func (s *MemoryStore) Record(ctx context.Context, sig *Signal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%d", sig.OpportunityID, sig.Kind, sig.TriggeredAt.UnixNano())
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true

	c := *sig
	s.signals[sig.OpportunityID] = append(s.signals[sig.OpportunityID], &c)
	return true, nil
}

func (s *MemoryStore) ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.signals[opportunityID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Newest first
	result := make([]*Signal, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		c := *all[i]
		result = append(result, &c)
	}
	return result, nil
}
