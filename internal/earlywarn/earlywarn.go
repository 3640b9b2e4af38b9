// Package earlywarn watches opportunity revision history and risk profile
// history for deteriorating trajectories and appends warning signals.
//
// Scans are deterministic: a signal's TriggeredAt is the instant the condition
// began, not the instant the scanner noticed it, so repeated sweeps over the
// same data produce the same signals and the store can de-duplicate them.
package earlywarn

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("no signals for opportunity")

// Kind names one trigger.
type Kind string

const (
	KindStageStagnation  Kind = "stage_stagnation"
	KindActivityDrop     Kind = "activity_drop"
	KindStakeholderChurn Kind = "stakeholder_churn"
	KindRiskAcceleration Kind = "risk_acceleration"
)

// Severity grades a signal.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Signal is one detected warning. Signals are append-only; resolving one is a
// workflow concern outside this engine.
type Signal struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	TenantID      string    `json:"tenantId"`
	Kind          Kind      `json:"kind"`
	Severity      Severity  `json:"severity"`
	TriggeredAt   time.Time `json:"triggeredAt"`
	DetectedAt    time.Time `json:"detectedAt"`
	Detail        string    `json:"detail"`
}

// Config holds the trigger thresholds.
type Config struct {
	// StagnationThresholdDays is how long a deal may sit in one stage.
	StagnationThresholdDays float64
	// ActivityDropThresholdDays flags a gap in activity on a deal that
	// previously had a faster cadence.
	ActivityDropThresholdDays float64
	// RiskAccelerationDelta is the aggregate score increase that trips the
	// acceleration trigger within RiskAccelerationWindow.
	RiskAccelerationDelta  float64
	RiskAccelerationWindow time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		StagnationThresholdDays:   14,
		ActivityDropThresholdDays: 10,
		RiskAccelerationDelta:     0.15,
		RiskAccelerationWindow:    7 * 24 * time.Hour,
	}
}

// Store persists signals append-only. Record de-duplicates on
// (opportunity, kind, triggeredAt) so idempotent sweeps don't multiply rows;
// it reports whether the signal was newly inserted.
type Store interface {
	Record(ctx context.Context, sig *Signal) (bool, error)
	// ListByOpportunity returns signals newest first, up to limit.
	ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]*Signal, error)
}
