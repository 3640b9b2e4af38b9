package quota

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists quotas in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed quota store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the quotas table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quotas (
			id             VARCHAR(40) PRIMARY KEY,
			tenant_id      VARCHAR(64) NOT NULL,
			target_user_id VARCHAR(64) NOT NULL,
			period_start   TIMESTAMPTZ NOT NULL,
			period_end     TIMESTAMPTZ NOT NULL,
			target_amount  NUMERIC(16,2) NOT NULL CHECK (target_amount > 0),
			currency       VARCHAR(8) NOT NULL DEFAULT 'USD',
			quota_type     VARCHAR(16) NOT NULL DEFAULT 'revenue',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_quotas_tenant
			ON quotas (tenant_id, period_start DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, q *Quota) error {
	if err := q.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quotas (id, tenant_id, target_user_id, period_start, period_end,
			target_amount, currency, quota_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		q.ID, q.TenantID, q.TargetUserID, q.PeriodStart, q.PeriodEnd,
		q.TargetAmount, q.Currency, string(q.QuotaType), q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quota: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Quota, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, target_user_id, period_start, period_end,
			target_amount, currency, quota_type, created_at
		FROM quotas
		WHERE id = $1
	`, id)

	q, err := scanQuota(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return q, err
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Quota, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, target_user_id, period_start, period_end,
			target_amount, currency, quota_type, created_at
		FROM quotas
		WHERE tenant_id = $1
		ORDER BY period_start DESC, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quotas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quota: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuota(row rowScanner) (*Quota, error) {
	var q Quota
	var quotaType string
	err := row.Scan(&q.ID, &q.TenantID, &q.TargetUserID, &q.PeriodStart, &q.PeriodEnd,
		&q.TargetAmount, &q.Currency, &quotaType, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.QuotaType = Type(quotaType)
	return &q, nil
}
