package earlywarn

import (
	"context"
	"fmt"
	"time"

	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/idgen"
	"github.com/revlens/revlens/internal/metrics"
	"github.com/revlens/revlens/internal/opportunity"
	"github.com/revlens/revlens/internal/traces"
)

// Notifier receives each newly recorded signal, for live streaming.
// Implementations must not block.
type Notifier interface {
	WarningSignal(sig *Signal)
}

// Service runs scans against stored history and records the resulting signals.
type Service struct {
	cfg      Config
	opps     opportunity.Store
	profiles evaluate.ProfileStore
	signals  Store
	notifier Notifier // nil = no live feed
}

// NewService creates an early-warning service.
func NewService(cfg Config, opps opportunity.Store, profiles evaluate.ProfileStore, signals Store) *Service {
	return &Service{cfg: cfg, opps: opps, profiles: profiles, signals: signals}
}

// SetNotifier attaches a live-feed notifier.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// ScanOpportunity scans one opportunity and records any signals. The recorded
// set is returned; signals already on file are de-duplicated by the store.
func (s *Service) ScanOpportunity(ctx context.Context, opportunityID string) ([]Signal, error) {
	ctx, span := traces.StartSpan(ctx, "earlywarn.ScanOpportunity", traces.OpportunityID(opportunityID))
	defer span.End()

	revisions, err := s.opps.Revisions(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListByOpportunity(ctx, opportunityID, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile history: %w", err)
	}

	found := Scan(s.cfg, revisions, profiles, time.Now())
	for i := range found {
		found[i].ID = idgen.WithPrefix("sig_")
		inserted, err := s.signals.Record(ctx, &found[i])
		if err != nil {
			return nil, fmt.Errorf("failed to record signal: %w", err)
		}
		if !inserted {
			continue // already on file from an earlier sweep
		}
		metrics.EarlyWarningSignalsTotal.WithLabelValues(string(found[i].Kind)).Inc()
		if s.notifier != nil {
			s.notifier.WarningSignal(&found[i])
		}
	}
	return found, nil
}

// Signals returns recorded signals for one opportunity, newest first.
func (s *Service) Signals(ctx context.Context, opportunityID string, limit int) ([]*Signal, error) {
	return s.signals.ListByOpportunity(ctx, opportunityID, limit)
}
