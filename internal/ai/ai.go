// Package ai wraps the external text-completion collaborator used by the
// AI-assisted risk detector. Any failure is the caller's to absorb: the
// engine treats a dead completer as "no AI risks detected", never as fatal.
package ai

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the completion collaborator failed or timed out.
var ErrUnavailable = errors.New("completion service unavailable")

// Completer is the black-box text-completion collaborator.
// schemaHint describes the response structure the caller expects back.
type Completer interface {
	Complete(ctx context.Context, prompt, schemaHint string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface (used in tests).
type CompleterFunc func(ctx context.Context, prompt, schemaHint string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt, schemaHint string) (string, error) {
	return f(ctx, prompt, schemaHint)
}
