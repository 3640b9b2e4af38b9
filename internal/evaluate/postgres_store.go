package evaluate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/revlens/revlens/internal/detect"
)

// PostgresStore persists risk profiles in PostgreSQL. Rows are append-only.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_profiles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_profiles (
			id              VARCHAR(40) PRIMARY KEY,
			opportunity_id  VARCHAR(64) NOT NULL,
			tenant_id       VARCHAR(64) NOT NULL,
			aggregate_score NUMERIC(4,3) NOT NULL CHECK (aggregate_score >= 0 AND aggregate_score <= 1),
			degraded        BOOLEAN NOT NULL DEFAULT FALSE,
			risks           JSONB NOT NULL DEFAULT '[]',
			inputs          JSONB NOT NULL DEFAULT '{}',
			evaluated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_profiles_opportunity
			ON risk_profiles (opportunity_id, evaluated_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, profile *RiskProfile) error {
	risksJSON, err := json.Marshal(profile.Risks)
	if err != nil {
		return fmt.Errorf("failed to marshal risks: %w", err)
	}
	inputsJSON, err := json.Marshal(profile.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles (id, opportunity_id, tenant_id, aggregate_score, degraded, risks, inputs, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		profile.ID, profile.OpportunityID, profile.TenantID,
		profile.AggregateScore, profile.Degraded, risksJSON, inputsJSON, profile.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]*RiskProfile, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opportunity_id, tenant_id, aggregate_score, degraded, risks, inputs, evaluated_at
		FROM risk_profiles
		WHERE opportunity_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, opportunityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskProfile
	for rows.Next() {
		var p RiskProfile
		var risksJSON, inputsJSON []byte

		if err := rows.Scan(&p.ID, &p.OpportunityID, &p.TenantID,
			&p.AggregateScore, &p.Degraded, &risksJSON, &inputsJSON, &p.EvaluatedAt); err != nil {
			return nil, err
		}
		p.Risks = []detect.DetectedRisk{}
		if err := json.Unmarshal(risksJSON, &p.Risks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal risks: %w", err)
		}
		if err := json.Unmarshal(inputsJSON, &p.Inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}
