//go:build integration

package opportunity

import (
	"context"
	"testing"
	"time"

	"github.com/revlens/revlens/internal/pagination"
	"github.com/revlens/revlens/internal/testutil"
)

func TestPostgresOpportunity_PutGetRevisions(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, stage := range []Stage{StageQualification, StageProposal} {
		err := store.Put(ctx, &Snapshot{
			ID:          "opp_pg1",
			TenantID:    "t1",
			OwnerID:     "u1",
			Value:       120000,
			Probability: 40,
			Stage:       stage,
			CapturedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := store.Get(ctx, "opp_pg1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Stage != StageProposal {
		t.Errorf("expected newest revision, got stage %s", got.Stage)
	}

	revs, err := store.Revisions(ctx, "opp_pg1")
	if err != nil {
		t.Fatalf("Revisions failed: %v", err)
	}
	if len(revs) != 2 || revs[0].Stage != StageQualification {
		t.Errorf("expected 2 revisions oldest first, got %d", len(revs))
	}
}

func TestPostgresOpportunity_ListCursorPaging(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"pg_a", "pg_b", "pg_c", "pg_d"} {
		err := store.Put(ctx, &Snapshot{
			ID:         id,
			TenantID:   "t1",
			OwnerID:    "u1",
			Stage:      StageProposal,
			CapturedAt: base.Add(time.Duration(-i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	first, err := store.List(ctx, ListOptions{TenantID: "t1", Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(first) != 2 || first[0].ID != "pg_a" || first[1].ID != "pg_b" {
		t.Fatalf("unexpected first page")
	}

	last := first[len(first)-1]
	second, err := store.List(ctx, ListOptions{
		TenantID: "t1",
		Limit:    10,
		After:    &pagination.Cursor{CreatedAt: last.CapturedAt, ID: last.ID},
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(second) != 2 || second[0].ID != "pg_c" || second[1].ID != "pg_d" {
		t.Errorf("unexpected second page")
	}
}
