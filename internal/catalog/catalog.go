// Package catalog is the registry of risk definitions a tenant can detect against.
//
// Definitions are immutable once referenced by a historical profile: updating
// one retires the old row and inserts a new version id. Every evaluation works
// against an immutable Catalog snapshot, never against shared mutable state.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("risk definition not found")
	ErrNoDefinitions = errors.New("no active risk definitions for tenant")
	ErrInvalidWeight = errors.New("weight must be in [0,1]")
	ErrMissingName   = errors.New("risk definition name is required")
)

// Category classifies a risk definition.
type Category string

const (
	CategoryFinancial    Category = "financial"
	CategoryTimeline     Category = "timeline"
	CategoryStage        Category = "stage"
	CategoryOperational  Category = "operational"
	CategoryRelationship Category = "relationship"
)

// Categories lists all known categories, used by the AI prompt and parsers.
func Categories() []Category {
	return []Category{
		CategoryFinancial, CategoryTimeline, CategoryStage,
		CategoryOperational, CategoryRelationship,
	}
}

// Valid reports whether the category is one of the known set.
func (c Category) Valid() bool {
	switch c {
	case CategoryFinancial, CategoryTimeline, CategoryStage,
		CategoryOperational, CategoryRelationship:
		return true
	}
	return false
}

// Definition is a single detectable risk.
type Definition struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	Name           string    `json:"name"`
	Category       Category  `json:"category"`
	Weight         float64   `json:"weight"` // 0-1
	RuleExpression string    `json:"ruleExpression"`
	IsCustom       bool      `json:"isCustom"`
	Version        int       `json:"version"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate checks a definition before it is stored.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrMissingName
	}
	if !d.Category.Valid() {
		return fmt.Errorf("unknown category %q", d.Category)
	}
	if d.Weight < 0 || d.Weight > 1 {
		return ErrInvalidWeight
	}
	return nil
}

// Store persists risk definitions per tenant.
type Store interface {
	// Active returns all active definitions for a tenant.
	Active(ctx context.Context, tenantID string) ([]*Definition, error)
	Get(ctx context.Context, id string) (*Definition, error)
	Create(ctx context.Context, def *Definition) error
	// Retire marks a definition inactive; updates create a new version id.
	Retire(ctx context.Context, id string) error
	// Seed inserts the built-in set for a tenant if it has no definitions yet.
	Seed(ctx context.Context, tenantID string) error
}

// Catalog is an immutable snapshot of a tenant's active definitions,
// passed into every evaluation call.
type Catalog struct {
	defs        []*Definition
	byID        map[string]*Definition
	byName      map[string]*Definition // lowercased name
	totalWeight float64
}

// New builds an immutable catalog snapshot from active definitions.
func New(defs []*Definition) *Catalog {
	c := &Catalog{
		byID:   make(map[string]*Definition, len(defs)),
		byName: make(map[string]*Definition, len(defs)),
	}
	for _, d := range defs {
		copied := *d
		c.defs = append(c.defs, &copied)
		c.byID[copied.ID] = &copied
		c.byName[strings.ToLower(copied.Name)] = &copied
		c.totalWeight += copied.Weight
	}
	return c
}

// Definitions returns the definitions in the snapshot.
func (c *Catalog) Definitions() []*Definition { return c.defs }

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// ByID resolves a definition by id.
func (c *Catalog) ByID(id string) (*Definition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// ByName resolves a definition by case-insensitive name.
func (c *Catalog) ByName(name string) (*Definition, bool) {
	d, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// TotalWeight is the sum of all definition weights, the denominator of the
// aggregate risk score.
func (c *Catalog) TotalWeight() float64 { return c.totalWeight }

// Load fetches the active definitions for a tenant and wraps them in a
// snapshot. Returns ErrNoDefinitions when the tenant has no usable entries.
func Load(ctx context.Context, store Store, tenantID string) (*Catalog, error) {
	defs, err := store.Active(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(defs) == 0 {
		return nil, ErrNoDefinitions
	}
	return New(defs), nil
}
