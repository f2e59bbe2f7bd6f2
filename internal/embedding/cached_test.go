package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEngine counts calls and fails the test if invoked more than once for
// the same text.
type mockEngine struct {
	t     *testing.T
	model string
	dims  int
	calls map[string]int
}

func newMockEngine(t *testing.T) *mockEngine {
	return &mockEngine{
		t:     t,
		model: "text-embedding-3-small",
		dims:  4,
		calls: map[string]int{},
	}
}

func (m *mockEngine) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls[text]++
	if m.calls[text] > 1 {
		m.t.Fatalf("provider invoked %d times for identical key %q", m.calls[text], text)
	}
	return []float32{float32(len(text)), 1, 2, 3}, nil
}

func (m *mockEngine) Model() string   { return m.model }
func (m *mockEngine) Dimensions() int { return m.dims }

func TestCachedEngine_ReferentialTransparency(t *testing.T) {
	mock := newMockEngine(t)
	cached := NewCachedEngine(mock, 16)

	first, err := cached.Embed(context.Background(), "Systems developer")
	require.NoError(t, err)

	second, err := cached.Embed(context.Background(), "Systems developer")
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical keys must return bit-identical vectors")
	assert.Equal(t, 1, mock.calls["Systems developer"])

	hits, misses := cached.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEngine_DistinctTextsAreDistinctKeys(t *testing.T) {
	mock := newMockEngine(t)
	cached := NewCachedEngine(mock, 16)

	_, err := cached.Embed(context.Background(), "nurse")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "nurse practitioner")
	require.NoError(t, err)

	assert.Equal(t, 1, mock.calls["nurse"])
	assert.Equal(t, 1, mock.calls["nurse practitioner"])
}

func TestCachedEngine_NeverCachesFailures(t *testing.T) {
	failing := &failingEngine{}
	cached := NewCachedEngine(failing, 16)

	_, err := cached.Embed(context.Background(), "anything")
	require.Error(t, err)

	// A second call must hit the provider again, not a cached failure.
	_, err = cached.Embed(context.Background(), "anything")
	require.Error(t, err)

	assert.Equal(t, 2, failing.calls)
	hits, _ := cached.Stats()
	assert.Equal(t, int64(0), hits)
}

type failingEngine struct {
	calls int
}

func (e *failingEngine) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	return nil, errors.New("provider down")
}
func (e *failingEngine) Model() string   { return "m" }
func (e *failingEngine) Dimensions() int { return 4 }
