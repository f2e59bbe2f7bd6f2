package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := NewError(KindEmbedding, "embed", base)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindEmbedding, pe.Kind)
	assert.ErrorIs(t, err, base)
}

func TestNewError_NilPassthrough(t *testing.T) {
	assert.NoError(t, NewError(KindRetrieval, "query", nil))
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("request failed: %w", NewError(KindCompletion, "complete", errors.New("500")))

	assert.True(t, IsKind(err, KindCompletion))
	assert.False(t, IsKind(err, KindEmbedding))
	assert.False(t, IsKind(errors.New("plain"), KindCompletion))
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		return errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return Transient(errors.New("rate limit exceeded (429)"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_ExhaustsTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		return Transient(errors.New("rate limit exceeded (429)"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, func() error {
		return Transient(errors.New("still failing"))
	})

	assert.ErrorIs(t, err, context.Canceled)
}
