// Package provider defines the shared failure taxonomy and retry policy for
// external collaborators (embedding, vector search, chat completion).
// Provider clients exhaust their own retry budget; everything above them
// treats a returned *provider.Error as terminal for the request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies which external collaborator failed.
type Kind string

const (
	KindEmbedding  Kind = "embedding"
	KindRetrieval  Kind = "retrieval"
	KindCompletion Kind = "completion"
)

// Error wraps a provider failure with the collaborator kind and the
// operation that was in flight. Distinguishable from parse failures and
// validation errors via errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a provider failure. Returns nil if err is nil.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is a provider error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// transientError marks a failure as retryable (rate limits, transport faults).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable for Retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Retry runs fn up to attempts times, sleeping with exponential backoff
// (1s, 2s, 4s, ...) between attempts. Only errors marked Transient are
// retried; anything else is returned immediately.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", errors.Unwrap(lastErr))
}
