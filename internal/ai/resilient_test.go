package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResilientCompleter_RetriesTransientFailure(t *testing.T) {
	calls := 0
	inner := CompleterFunc(func(ctx context.Context, prompt, schemaHint string) (string, error) {
		calls++
		if calls == 1 {
			return "", ErrUnavailable
		}
		return `{"risks":[]}`, nil
	})

	r := NewResilientCompleter(inner)
	r.baseDelay = time.Millisecond

	out, err := r.Complete(context.Background(), "prompt", "{}")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if out != `{"risks":[]}` {
		t.Errorf("unexpected output %q", out)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestResilientCompleter_TripsAfterSustainedFailure(t *testing.T) {
	inner := CompleterFunc(func(ctx context.Context, prompt, schemaHint string) (string, error) {
		return "", ErrUnavailable
	})

	r := NewResilientCompleter(inner)
	r.baseDelay = time.Millisecond

	// Five consecutive failures trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := r.Complete(context.Background(), "p", "{}"); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := r.Complete(context.Background(), "p", "{}")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected circuit open, got %v", err)
	}
}

func TestResilientCompleter_NoRetryAfterDeadline(t *testing.T) {
	calls := 0
	inner := CompleterFunc(func(ctx context.Context, prompt, schemaHint string) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})

	r := NewResilientCompleter(inner)
	r.baseDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.Complete(ctx, "p", "{}"); err == nil {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt against a spent deadline, got %d", calls)
	}
}
