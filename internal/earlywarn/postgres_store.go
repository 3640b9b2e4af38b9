package earlywarn

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists warning signals in PostgreSQL. Rows are append-only
// and de-duplicated on (opportunity, kind, triggered_at).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed signal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the early_warning_signals table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS early_warning_signals (
			id             VARCHAR(40) PRIMARY KEY,
			opportunity_id VARCHAR(64) NOT NULL,
			tenant_id      VARCHAR(64) NOT NULL,
			kind           VARCHAR(32) NOT NULL,
			severity       VARCHAR(16) NOT NULL,
			triggered_at   TIMESTAMPTZ NOT NULL,
			detected_at    TIMESTAMPTZ NOT NULL,
			detail         TEXT NOT NULL DEFAULT ''
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_ew_signals_dedup
			ON early_warning_signals (opportunity_id, kind, triggered_at);

		CREATE INDEX IF NOT EXISTS idx_ew_signals_opportunity
			ON early_warning_signals (opportunity_id, triggered_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, sig *Signal) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO early_warning_signals
			(id, opportunity_id, tenant_id, kind, severity, triggered_at, detected_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (opportunity_id, kind, triggered_at) DO NOTHING
	`,
		sig.ID, sig.OpportunityID, sig.TenantID, string(sig.Kind),
		string(sig.Severity), sig.TriggeredAt, sig.DetectedAt, sig.Detail,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record signal: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListByOpportunity(ctx context.Context, opportunityID string, limit int) ([]*Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opportunity_id, tenant_id, kind, severity, triggered_at, detected_at, detail
		FROM early_warning_signals
		WHERE opportunity_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`, opportunityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Signal
	for rows.Next() {
		var sig Signal
		var kind, severity string
		if err := rows.Scan(&sig.ID, &sig.OpportunityID, &sig.TenantID, &kind,
			&severity, &sig.TriggeredAt, &sig.DetectedAt, &sig.Detail); err != nil {
			return nil, err
		}
		sig.Kind = Kind(kind)
		sig.Severity = Severity(severity)
		result = append(result, &sig)
	}
	return result, rows.Err()
}
