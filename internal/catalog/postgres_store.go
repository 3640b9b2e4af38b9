package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists risk definitions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_definitions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_definitions (
			id              VARCHAR(40) PRIMARY KEY,
			tenant_id       VARCHAR(64) NOT NULL,
			name            TEXT NOT NULL,
			category        VARCHAR(16) NOT NULL CHECK (category IN
				('financial', 'timeline', 'stage', 'operational', 'relationship')),
			weight          NUMERIC(4,3) NOT NULL CHECK (weight >= 0 AND weight <= 1),
			rule_expression TEXT NOT NULL DEFAULT '',
			is_custom       BOOLEAN NOT NULL DEFAULT FALSE,
			version         INT NOT NULL DEFAULT 1,
			active          BOOLEAN NOT NULL DEFAULT TRUE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_definitions_tenant
			ON risk_definitions (tenant_id) WHERE active;
	`)
	return err
}

const definitionColumns = `id, tenant_id, name, category, weight, rule_expression,
	is_custom, version, active, created_at`

func (s *PostgresStore) Active(ctx context.Context, tenantID string) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+definitionColumns+`
		FROM risk_definitions
		WHERE tenant_id = $1 AND active
		ORDER BY weight DESC, name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk definitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+definitionColumns+`
		FROM risk_definitions
		WHERE id = $1
	`, id)

	d, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *PostgresStore) Create(ctx context.Context, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_definitions (`+definitionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		def.ID, def.TenantID, def.Name, string(def.Category), def.Weight,
		def.RuleExpression, def.IsCustom, def.Version, def.Active, def.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create risk definition: %w", err)
	}
	return nil
}

func (s *PostgresStore) Retire(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE risk_definitions SET active = FALSE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to retire risk definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Seed(ctx context.Context, tenantID string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM risk_definitions WHERE tenant_id = $1
	`, tenantID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check catalog seed: %w", err)
	}
	if count > 0 {
		return nil // already seeded
	}

	for _, d := range BuiltinDefinitions(tenantID) {
		if err := s.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var d Definition
	var category string
	if err := row.Scan(
		&d.ID, &d.TenantID, &d.Name, &category, &d.Weight,
		&d.RuleExpression, &d.IsCustom, &d.Version, &d.Active, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	d.Category = Category(category)
	return &d, nil
}
