package catalog

import (
	"context"
	"time"

	"github.com/revlens/revlens/internal/idgen"
	"github.com/revlens/revlens/internal/syncutil"
)

// Service manages a tenant's catalog. Updates never mutate a definition in
// place: the old version is retired and a new id is minted, so historical
// profiles keep resolving against the version they were scored with.
type Service struct {
	store  Store
	seedMu syncutil.ShardedMutex // serializes first-use seeding per tenant
}

// NewService creates a catalog service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// EnsureSeeded installs the built-in definition set for a tenant on first use.
// Concurrent first requests for the same tenant seed exactly once.
func (s *Service) EnsureSeeded(ctx context.Context, tenantID string) error {
	unlock := s.seedMu.Lock(tenantID)
	defer unlock()
	return s.store.Seed(ctx, tenantID)
}

// Snapshot loads the tenant's active catalog as an immutable snapshot.
func (s *Service) Snapshot(ctx context.Context, tenantID string) (*Catalog, error) {
	return Load(ctx, s.store, tenantID)
}

// CreateCustom adds a tenant-defined risk definition.
func (s *Service) CreateCustom(ctx context.Context, tenantID, name string, category Category, weight float64, rule string) (*Definition, error) {
	def := &Definition{
		ID:             idgen.WithPrefix("risk_"),
		TenantID:       tenantID,
		Name:           name,
		Category:       category,
		Weight:         weight,
		RuleExpression: rule,
		IsCustom:       true,
		Version:        1,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if err := s.store.Create(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// UpdateDefinition retires the current version and creates a successor with a
// fresh id and incremented version.
func (s *Service) UpdateDefinition(ctx context.Context, id string, name string, category Category, weight float64, rule string) (*Definition, error) {
	old, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := &Definition{
		ID:             idgen.WithPrefix("risk_"),
		TenantID:       old.TenantID,
		Name:           name,
		Category:       category,
		Weight:         weight,
		RuleExpression: rule,
		IsCustom:       true,
		Version:        old.Version + 1,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Retire(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}
