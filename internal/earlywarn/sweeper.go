package earlywarn

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/revlens/revlens/internal/opportunity"
)

// sweepLookbackDays bounds which opportunities a sweep visits: only deals
// with a revision captured inside this window are rescanned.
const sweepLookbackDays = 30

// sweepBatchLimit caps the opportunities visited per sweep.
const sweepBatchLimit = 500

// Sweeper periodically rescans recently-active opportunities for warnings.
type Sweeper struct {
	svc      *Service
	opps     opportunity.Store
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a background sweep worker.
func NewSweeper(svc *Service, opps opportunity.Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		svc:      svc,
		opps:     opps,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start sweeps once immediately, then on every tick until the context is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	s.safeSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in early-warning sweep", "panic", fmt.Sprint(r))
		}
	}()
	s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) {
	since := time.Now().Add(-sweepLookbackDays * 24 * time.Hour)
	ids, err := s.opps.ListActiveIDs(ctx, since, sweepBatchLimit)
	if err != nil {
		s.logger.Error("sweep: failed to list active opportunities", "error", err)
		return
	}

	var signals int
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		found, err := s.svc.ScanOpportunity(ctx, id)
		if err != nil {
			s.logger.Warn("sweep: scan failed", "opportunity_id", id, "error", err)
			continue
		}
		signals += len(found)
	}

	if len(ids) > 0 {
		s.logger.Info("early-warning sweep complete",
			"opportunities", len(ids), "signals", signals)
	}
}
