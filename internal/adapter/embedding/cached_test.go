package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder tracks how many times Embed is called and with how many texts.
type countingEmbedder struct {
	calls atomic.Int64
	texts atomic.Int64
	dims  int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dims)
		for j := range v {
			v[j] = float32(len(t)+j) / 100.0
		}
		out[i] = v
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return e.dims }
func (e *countingEmbedder) Name() string    { return "counting" }

func TestCachedEmbedderHitMiss(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	cached := NewCachedEmbedder(inner, 10).(*CachedEmbedder)
	ctx := context.Background()

	r1, err := cached.Embed(ctx, []string{"hello"})
	require.NoError(t, err)
	r2, err := cached.Embed(ctx, []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, r1, r2)
	hits, misses := cached.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCachedEmbedderBatchEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"a"})
	require.NoError(t, err)

	vecs, err := cached.Embed(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int64(3), inner.texts.Load(), "only bb and ccc re-sent")
	assert.Equal(t, []float32{0.03, 0.04}, vecs[2], "order preserved")

	_, err = cached.Embed(ctx, []string{"ccc", "bb"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load(), "full hit skips inner")
}

func TestCachedEmbedderEviction(t *testing.T) {
	inner := &countingEmbedder{dims: 1}
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, s := range []string{"one", "two", "three"} {
		_, err := cached.Embed(ctx, []string{s})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), inner.calls.Load())

	// "one" was evicted, "three" is cached.
	_, _ = cached.Embed(ctx, []string{"three"})
	assert.Equal(t, int64(3), inner.calls.Load())
	_, _ = cached.Embed(ctx, []string{"one"})
	assert.Equal(t, int64(4), inner.calls.Load())
}

func TestCachedEmbedderLRUPromotion(t *testing.T) {
	inner := &countingEmbedder{dims: 1}
	cached := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	_, _ = cached.Embed(ctx, []string{"a"})
	_, _ = cached.Embed(ctx, []string{"b"})
	_, _ = cached.Embed(ctx, []string{"a"}) // promote a
	_, _ = cached.Embed(ctx, []string{"c"}) // evicts b

	before := inner.calls.Load()
	_, _ = cached.Embed(ctx, []string{"a"})
	assert.Equal(t, before, inner.calls.Load(), "a still cached")
	_, _ = cached.Embed(ctx, []string{"b"})
	assert.Equal(t, before+1, inner.calls.Load(), "b was evicted")
}

func TestCachedEmbedderErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{dims: 1, err: errors.New("down")}
	cached := NewCachedEmbedder(inner, 4)

	_, err := cached.Embed(context.Background(), []string{"x"})
	require.Error(t, err)

	inner.err = nil
	_, err = cached.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedEmbedderConcurrency(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	cached := NewCachedEmbedder(inner, 16)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Embed(context.Background(), []string{fmt.Sprintf("q%d", i%8)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls.Load(), int64(50))
}

func TestNewCachedEmbedderZeroSize(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	assert.Same(t, inner, NewCachedEmbedder(inner, 0))
}

func TestCachedEmbedderDelegation(t *testing.T) {
	cached := NewCachedEmbedder(&countingEmbedder{dims: 7}, 2)
	assert.Equal(t, 7, cached.Dimensions())
	assert.Equal(t, "counting", cached.Name())

	vecs, err := cached.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
