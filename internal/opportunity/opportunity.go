// Package opportunity holds the sales opportunity snapshot model consumed by
// the risk detectors, plus its revision history.
//
// A snapshot is a read-only projection of a deal at a point in time. Writes
// append a new revision; nothing in the engine mutates a stored snapshot.
package opportunity

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/revlens/revlens/internal/pagination"
)

var (
	ErrNotFound     = errors.New("opportunity not found")
	ErrMissingID    = errors.New("opportunity id is required")
	ErrMissingOwner = errors.New("opportunity owner is required")
)

// Stage is the pipeline stage of a deal, normalized to snake_case.
type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

// Terminal reports whether the stage is a final outcome.
func (s Stage) Terminal() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// Snapshot is a point-in-time projection of an opportunity.
type Snapshot struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	Name            string    `json:"name"`
	Value           float64   `json:"value"`
	Currency        string    `json:"currency"`
	ExpectedRevenue float64   `json:"expectedRevenue"`
	Probability     float64   `json:"probability"` // 0-100
	Stage           Stage     `json:"stage"`
	CloseDate       time.Time `json:"closeDate"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
	OwnerID         string    `json:"ownerId"`
	AccountID       string    `json:"accountId"`

	// Relationship and activity context (optional; feeds the AI detector
	// and the stakeholder-churn trigger).
	StakeholderIDs   []string `json:"stakeholderIds,omitempty"`
	ActivityCount30d int      `json:"activityCount30d,omitempty"`

	CapturedAt time.Time `json:"capturedAt"`
}

// Derived carries the evaluation-time fields computed from a snapshot.
// These are never persisted on the source record.
type Derived struct {
	DaysToClose       float64 `json:"daysToClose"`
	DaysSinceActivity float64 `json:"daysSinceActivity"`
	RevenueGapPct     float64 `json:"revenueGapPct"`
}

// DeriveAt computes the derived fields as of the given instant.
func (s *Snapshot) DeriveAt(now time.Time) Derived {
	d := Derived{}
	if !s.CloseDate.IsZero() {
		d.DaysToClose = s.CloseDate.Sub(now).Hours() / 24
	}
	if !s.LastActivityAt.IsZero() {
		d.DaysSinceActivity = now.Sub(s.LastActivityAt).Hours() / 24
	}
	if s.Value != 0 {
		d.RevenueGapPct = math.Abs(s.Value-s.ExpectedRevenue) / s.Value
	}
	return d
}

// Clone returns a deep copy. Simulations apply overrides onto a clone so the
// stored baseline is never touched.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	if s.StakeholderIDs != nil {
		c.StakeholderIDs = append([]string(nil), s.StakeholderIDs...)
	}
	return &c
}

// ListOptions filters snapshot listings. Results are ordered newest capture
// first with the opportunity id as a tiebreak; After resumes a listing past
// that position.
type ListOptions struct {
	TenantID string
	OwnerID  string
	Stage    Stage
	Limit    int
	After    *pagination.Cursor
}

// Store persists opportunity snapshots and their revision history.
//
// Put appends a new revision and makes it the current snapshot. Revisions
// returns history oldest-first, which is the order the early-warning monitor
// consumes.
type Store interface {
	Put(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context, opts ListOptions) ([]*Snapshot, error)
	ListOpen(ctx context.Context, ownerID string, from, to time.Time) ([]*Snapshot, error)
	ListClosedWon(ctx context.Context, ownerID string, from, to time.Time) ([]*Snapshot, error)
	Revisions(ctx context.Context, id string) ([]*Snapshot, error)

	// ListActiveIDs returns ids of opportunities with a revision captured
	// after the cutoff, for the early-warning sweeper.
	ListActiveIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// Validate checks the minimal intake invariants before a snapshot is stored.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return ErrMissingID
	}
	if s.OwnerID == "" {
		return ErrMissingOwner
	}
	return nil
}
