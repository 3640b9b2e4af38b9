package opportunity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/revlens/revlens/internal/pagination"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu        sync.RWMutex
	revisions map[string][]*Snapshot // opportunity id → revisions, oldest first
}

// NewMemoryStore creates an in-memory opportunity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revisions: make(map[string][]*Snapshot),
	}
}

func (s *MemoryStore) Put(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := snap.Clone()
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}
	s.revisions[c.ID] = append(s.revisions[c.ID], c)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.revisions[id]
	if len(revs) == 0 {
		return nil, ErrNotFound
	}
	return revs[len(revs)-1].Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Snapshot
	for _, revs := range s.revisions {
		cur := revs[len(revs)-1]
		if opts.TenantID != "" && cur.TenantID != opts.TenantID {
			continue
		}
		if opts.OwnerID != "" && cur.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Stage != "" && cur.Stage != opts.Stage {
			continue
		}
		if opts.After != nil && !afterCursor(cur, opts.After) {
			continue
		}
		result = append(result, cur.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CapturedAt.Equal(result[j].CapturedAt) {
			return result[i].CapturedAt.After(result[j].CapturedAt)
		}
		return result[i].ID < result[j].ID
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// afterCursor reports whether cur sorts strictly after the cursor position in
// the newest-first listing order.
func afterCursor(cur *Snapshot, c *pagination.Cursor) bool {
	if cur.CapturedAt.Equal(c.CreatedAt) {
		return cur.ID > c.ID
	}
	return cur.CapturedAt.Before(c.CreatedAt)
}

func (s *MemoryStore) ListOpen(ctx context.Context, ownerID string, from, to time.Time) ([]*Snapshot, error) {
	return s.listByOwner(ownerID, from, to, false)
}

func (s *MemoryStore) ListClosedWon(ctx context.Context, ownerID string, from, to time.Time) ([]*Snapshot, error) {
	return s.listByOwner(ownerID, from, to, true)
}

func (s *MemoryStore) listByOwner(ownerID string, from, to time.Time, closedWon bool) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Snapshot
	for _, revs := range s.revisions {
		cur := revs[len(revs)-1]
		if cur.OwnerID != ownerID {
			continue
		}
		if !from.IsZero() && cur.CloseDate.Before(from) {
			continue
		}
		if !to.IsZero() && cur.CloseDate.After(to) {
			continue
		}
		if closedWon {
			if cur.Stage != StageClosedWon {
				continue
			}
		} else if cur.Stage.Terminal() {
			continue
		}
		result = append(result, cur.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CloseDate.Before(result[j].CloseDate)
	})
	return result, nil
}

func (s *MemoryStore) Revisions(ctx context.Context, id string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.revisions[id]
	if len(revs) == 0 {
		return nil, ErrNotFound
	}
	result := make([]*Snapshot, len(revs))
	for i, r := range revs {
		result[i] = r.Clone()
	}
	return result, nil
}

func (s *MemoryStore) ListActiveIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, revs := range s.revisions {
		if revs[len(revs)-1].CapturedAt.After(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
