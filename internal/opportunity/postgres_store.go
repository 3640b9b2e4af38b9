package opportunity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists opportunity revisions in PostgreSQL.
// Every Put inserts a new row; the current snapshot is the newest revision.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed opportunity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the opportunity_revisions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS opportunity_revisions (
			seq               BIGSERIAL PRIMARY KEY,
			opportunity_id    VARCHAR(64) NOT NULL,
			tenant_id         VARCHAR(64) NOT NULL,
			name              TEXT NOT NULL DEFAULT '',
			value             NUMERIC(16,2) NOT NULL,
			currency          VARCHAR(8) NOT NULL DEFAULT 'USD',
			expected_revenue  NUMERIC(16,2) NOT NULL DEFAULT 0,
			probability       NUMERIC(5,2) NOT NULL CHECK (probability >= 0 AND probability <= 100),
			stage             VARCHAR(32) NOT NULL,
			close_date        TIMESTAMPTZ,
			last_activity_at  TIMESTAMPTZ,
			owner_id          VARCHAR(64) NOT NULL,
			account_id        VARCHAR(64) NOT NULL DEFAULT '',
			stakeholder_ids   TEXT[] NOT NULL DEFAULT '{}',
			activity_count_30d INT NOT NULL DEFAULT 0,
			captured_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_opp_revisions_id
			ON opportunity_revisions (opportunity_id, captured_at DESC);

		CREATE INDEX IF NOT EXISTS idx_opp_revisions_owner
			ON opportunity_revisions (owner_id, close_date);
	`)
	return err
}

const snapshotColumns = `opportunity_id, tenant_id, name, value, currency, expected_revenue,
	probability, stage, close_date, last_activity_at, owner_id, account_id,
	stakeholder_ids, activity_count_30d, captured_at`

// currentCTE selects the newest revision per opportunity.
const currentCTE = `
	SELECT DISTINCT ON (opportunity_id) ` + snapshotColumns + `
	FROM opportunity_revisions
	ORDER BY opportunity_id, captured_at DESC`

func (s *PostgresStore) Put(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	capturedAt := snap.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunity_revisions (`+snapshotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		snap.ID, snap.TenantID, snap.Name, snap.Value, snap.Currency,
		snap.ExpectedRevenue, snap.Probability, string(snap.Stage),
		nullTime(snap.CloseDate), nullTime(snap.LastActivityAt),
		snap.OwnerID, snap.AccountID, pq.Array(snap.StakeholderIDs),
		snap.ActivityCount30d, capturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert opportunity revision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM opportunity_revisions
		WHERE opportunity_id = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`, id)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return snap, err
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*Snapshot, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	var afterTime any
	afterID := ""
	if opts.After != nil {
		afterTime = opts.After.CreatedAt
		afterID = opts.After.ID
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH current AS (`+currentCTE+`)
		SELECT * FROM current
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR owner_id = $2)
		  AND ($3 = '' OR stage = $3)
		  AND ($5::timestamptz IS NULL
		       OR captured_at < $5
		       OR (captured_at = $5 AND opportunity_id > $6))
		ORDER BY captured_at DESC, opportunity_id ASC
		LIMIT $4
	`, opts.TenantID, opts.OwnerID, string(opts.Stage), limit, afterTime, afterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return scanSnapshots(rows)
}

func (s *PostgresStore) ListOpen(ctx context.Context, ownerID string, from, to time.Time) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH current AS (`+currentCTE+`)
		SELECT * FROM current
		WHERE owner_id = $1
		  AND ($2::timestamptz IS NULL OR close_date >= $2)
		  AND ($3::timestamptz IS NULL OR close_date <= $3)
		  AND stage NOT IN ('closed_won', 'closed_lost')
		ORDER BY close_date
	`, ownerID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list open opportunities: %w", err)
	}
	return scanSnapshots(rows)
}

func (s *PostgresStore) ListClosedWon(ctx context.Context, ownerID string, from, to time.Time) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH current AS (`+currentCTE+`)
		SELECT * FROM current
		WHERE owner_id = $1
		  AND ($2::timestamptz IS NULL OR close_date >= $2)
		  AND ($3::timestamptz IS NULL OR close_date <= $3)
		  AND stage = 'closed_won'
		ORDER BY close_date
	`, ownerID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list closed-won opportunities: %w", err)
	}
	return scanSnapshots(rows)
}

func (s *PostgresStore) Revisions(ctx context.Context, id string) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM opportunity_revisions
		WHERE opportunity_id = $1
		ORDER BY captured_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	revs, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, ErrNotFound
	}
	return revs, nil
}

func (s *PostgresStore) ListActiveIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT opportunity_id
		FROM opportunity_revisions
		WHERE captured_at > $1
		ORDER BY opportunity_id
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active opportunity ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var stage string
	var closeDate, lastActivity sql.NullTime
	var stakeholders pq.StringArray

	err := row.Scan(
		&snap.ID, &snap.TenantID, &snap.Name, &snap.Value, &snap.Currency,
		&snap.ExpectedRevenue, &snap.Probability, &stage,
		&closeDate, &lastActivity, &snap.OwnerID, &snap.AccountID,
		&stakeholders, &snap.ActivityCount30d, &snap.CapturedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.Stage = Stage(stage)
	if closeDate.Valid {
		snap.CloseDate = closeDate.Time
	}
	if lastActivity.Valid {
		snap.LastActivityAt = lastActivity.Time
	}
	snap.StakeholderIDs = []string(stakeholders)
	return &snap, nil
}

func scanSnapshots(rows *sql.Rows) ([]*Snapshot, error) {
	defer func() { _ = rows.Close() }()

	var result []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
