package detect

import (
	"context"
	"errors"
	"time"

	"github.com/revlens/revlens/internal/ai"
	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/logging"
	"github.com/revlens/revlens/internal/metrics"
	"github.com/revlens/revlens/internal/opportunity"
)

const defaultAITimeout = 8 * time.Second

// AIDetector asks the external completion collaborator to identify risks.
// Detection is best-effort and additive: any failure, timeout, or garbage
// response degrades to an empty result, never an error.
type AIDetector struct {
	completer ai.Completer
	parser    ParserConfig
	timeout   time.Duration
}

// AIOption configures the detector.
type AIOption func(*AIDetector)

// WithTimeout bounds the external completion call.
func WithTimeout(d time.Duration) AIOption {
	return func(a *AIDetector) { a.timeout = d }
}

// WithParserConfig overrides the lexical-cue confidence buckets.
func WithParserConfig(cfg ParserConfig) AIOption {
	return func(a *AIDetector) { a.parser = cfg }
}

// NewAIDetector creates an AI-assisted detector.
func NewAIDetector(completer ai.Completer, opts ...AIOption) *AIDetector {
	d := &AIDetector{
		completer: completer,
		parser:    DefaultParserConfig(),
		timeout:   defaultAITimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect builds the numeric context, calls the completer, and parses the
// response. quota may be nil when no owner quota context is available.
// The bool reports whether the completer answered: false means the AI was
// unavailable, true with zero risks means it ran and found nothing.
func (d *AIDetector) Detect(ctx context.Context, snap *opportunity.Snapshot, derived opportunity.Derived, cat *catalog.Catalog, quota *QuotaContext) ([]DetectedRisk, bool) {
	prompt, err := BuildPrompt(snap, derived, cat, quota)
	if err != nil {
		logging.L(ctx).Warn("ai detection skipped: prompt build failed",
			"opportunity_id", snap.ID, "error", err)
		metrics.AIDetectionsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.completer.Complete(callCtx, prompt, SchemaHint)
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			result = "timeout"
		}
		logging.L(ctx).Warn("ai detection unavailable, degrading to rule-only",
			"opportunity_id", snap.ID, "error", err)
		metrics.AIDetectionsTotal.WithLabelValues(result).Inc()
		return nil, false
	}

	risks, structured := ParseResponse(raw, cat, d.parser)
	if structured {
		metrics.AIDetectionsTotal.WithLabelValues("ok").Inc()
	} else {
		logging.L(ctx).Debug("ai response not structured, used lexical fallback",
			"opportunity_id", snap.ID, "risks", len(risks))
		metrics.AIDetectionsTotal.WithLabelValues("parse_fallback").Inc()
	}
	return risks, true
}
