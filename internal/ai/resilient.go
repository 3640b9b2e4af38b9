package ai

import (
	"context"
	"errors"
	"time"

	"github.com/revlens/revlens/internal/circuitbreaker"
	"github.com/revlens/revlens/internal/retry"
)

// ErrCircuitOpen is returned while the upstream model is tripped open.
var ErrCircuitOpen = errors.New("completion circuit open")

const breakerKey = "completion"

// ResilientCompleter wraps a Completer with bounded retries and a circuit
// breaker. A transient upstream failure is retried with backoff; sustained
// failure trips the circuit so evaluations degrade to rule-only immediately
// instead of waiting out the AI timeout on every call.
type ResilientCompleter struct {
	inner       Completer
	breaker     *circuitbreaker.Breaker
	maxAttempts int
	baseDelay   time.Duration
}

// NewResilientCompleter wraps inner with retry and circuit-breaker protection.
func NewResilientCompleter(inner Completer) *ResilientCompleter {
	return &ResilientCompleter{
		inner:       inner,
		breaker:     circuitbreaker.New(5, 30*time.Second),
		maxAttempts: 2,
		baseDelay:   200 * time.Millisecond,
	}
}

func (r *ResilientCompleter) Complete(ctx context.Context, prompt, schemaHint string) (string, error) {
	if !r.breaker.Allow(breakerKey) {
		return "", ErrCircuitOpen
	}

	var out string
	err := retry.Do(ctx, r.maxAttempts, r.baseDelay, func() error {
		var err error
		out, err = r.inner.Complete(ctx, prompt, schemaHint)
		if err != nil && ctx.Err() != nil {
			// The deadline is spent; a second attempt can't succeed.
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		r.breaker.RecordFailure(breakerKey)
		return "", err
	}
	r.breaker.RecordSuccess(breakerKey)
	return out, nil
}
