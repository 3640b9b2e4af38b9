package earlywarn

import (
	"fmt"
	"time"

	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/opportunity"
)

// Scan inspects one opportunity's revision history (oldest first) and profile
// history (newest first) and returns every warning in effect at now. Pure:
// same inputs, same signals.
func Scan(cfg Config, revisions []*opportunity.Snapshot, profiles []*evaluate.RiskProfile, now time.Time) []Signal {
	if len(revisions) == 0 {
		return nil
	}
	current := revisions[len(revisions)-1]

	var signals []Signal
	if !current.Stage.Terminal() {
		if sig := scanStagnation(cfg, revisions, now); sig != nil {
			signals = append(signals, *sig)
		}
		if sig := scanActivityDrop(cfg, revisions, now); sig != nil {
			signals = append(signals, *sig)
		}
		if sig := scanStakeholderChurn(revisions); sig != nil {
			signals = append(signals, *sig)
		}
	}
	if sig := scanRiskAcceleration(cfg, current, profiles); sig != nil {
		signals = append(signals, *sig)
	}

	for i := range signals {
		signals[i].OpportunityID = current.ID
		signals[i].TenantID = current.TenantID
		signals[i].DetectedAt = now
	}
	return signals
}

// scanStagnation fires when the deal has sat in its current stage longer than
// the threshold.
func scanStagnation(cfg Config, revisions []*opportunity.Snapshot, now time.Time) *Signal {
	current := revisions[len(revisions)-1]

	// Walk back to the first revision of the current contiguous stage run.
	stageSince := current.CapturedAt
	for i := len(revisions) - 1; i >= 0; i-- {
		if revisions[i].Stage != current.Stage {
			break
		}
		stageSince = revisions[i].CapturedAt
	}

	days := now.Sub(stageSince).Hours() / 24
	if days <= cfg.StagnationThresholdDays {
		return nil
	}

	severity := SeverityWarning
	if days > 2*cfg.StagnationThresholdDays {
		severity = SeverityCritical
	}
	return &Signal{
		Kind:        KindStageStagnation,
		Severity:    severity,
		TriggeredAt: stageSince.Add(time.Duration(cfg.StagnationThresholdDays * 24 * float64(time.Hour))),
		Detail: fmt.Sprintf("stage %q unchanged for %.0f days (threshold %.0f)",
			current.Stage, days, cfg.StagnationThresholdDays),
	}
}

// scanActivityDrop fires on a cadence change: the deal had regular activity,
// then went quiet for longer than the threshold. A deal that was always quiet
// never trips it.
func scanActivityDrop(cfg Config, revisions []*opportunity.Snapshot, now time.Time) *Signal {
	activities := activityTimes(revisions)
	if len(activities) < 2 {
		return nil
	}

	// Prior cadence: every gap between recorded activities stayed under the
	// threshold.
	for i := 1; i < len(activities); i++ {
		gap := activities[i].Sub(activities[i-1]).Hours() / 24
		if gap > cfg.ActivityDropThresholdDays {
			return nil
		}
	}

	last := activities[len(activities)-1]
	silence := now.Sub(last).Hours() / 24
	if silence <= cfg.ActivityDropThresholdDays {
		return nil
	}

	return &Signal{
		Kind:        KindActivityDrop,
		Severity:    SeverityWarning,
		TriggeredAt: last.Add(time.Duration(cfg.ActivityDropThresholdDays * 24 * float64(time.Hour))),
		Detail: fmt.Sprintf("no activity for %.0f days after a cadence under %.0f days",
			silence, cfg.ActivityDropThresholdDays),
	}
}

// activityTimes extracts the distinct activity timestamps in ascending order.
func activityTimes(revisions []*opportunity.Snapshot) []time.Time {
	var out []time.Time
	for _, rev := range revisions {
		if rev.LastActivityAt.IsZero() {
			continue
		}
		if len(out) > 0 && !rev.LastActivityAt.After(out[len(out)-1]) {
			continue
		}
		out = append(out, rev.LastActivityAt)
	}
	return out
}

// scanStakeholderChurn fires when a stakeholder present in one revision is
// gone in the next. Only the most recent churn event is reported.
func scanStakeholderChurn(revisions []*opportunity.Snapshot) *Signal {
	for i := len(revisions) - 1; i > 0; i-- {
		lost := missingFrom(revisions[i-1].StakeholderIDs, revisions[i].StakeholderIDs)
		if len(lost) == 0 {
			continue
		}

		severity := SeverityWarning
		if len(revisions[i].StakeholderIDs) <= 1 {
			severity = SeverityCritical
		}
		return &Signal{
			Kind:        KindStakeholderChurn,
			Severity:    severity,
			TriggeredAt: revisions[i].CapturedAt,
			Detail: fmt.Sprintf("%d stakeholder(s) dropped, %d remain",
				len(lost), len(revisions[i].StakeholderIDs)),
		}
	}
	return nil
}

func missingFrom(before, after []string) []string {
	present := make(map[string]bool, len(after))
	for _, id := range after {
		present[id] = true
	}
	var lost []string
	for _, id := range before {
		if !present[id] {
			lost = append(lost, id)
		}
	}
	return lost
}

// scanRiskAcceleration fires when the aggregate score climbed by more than
// the configured delta inside the lookback window.
func scanRiskAcceleration(cfg Config, current *opportunity.Snapshot, profiles []*evaluate.RiskProfile) *Signal {
	if len(profiles) < 2 {
		return nil
	}
	latest := profiles[0]
	cutoff := latest.EvaluatedAt.Add(-cfg.RiskAccelerationWindow)

	// Profiles are newest first; find the earliest one still inside the window.
	baseline := latest
	for _, p := range profiles[1:] {
		if p.EvaluatedAt.Before(cutoff) {
			break
		}
		baseline = p
	}

	delta := latest.AggregateScore - baseline.AggregateScore
	if delta <= cfg.RiskAccelerationDelta {
		return nil
	}

	return &Signal{
		Kind:        KindRiskAcceleration,
		Severity:    SeverityCritical,
		TriggeredAt: latest.EvaluatedAt,
		Detail: fmt.Sprintf("aggregate risk score rose %.2f (%.2f to %.2f) within %s",
			delta, baseline.AggregateScore, latest.AggregateScore, cfg.RiskAccelerationWindow),
	}
}
