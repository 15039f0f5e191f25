package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	calls   int
	results []Result
	err     error
}

func (b *countingBackend) Name() string { return "counting" }

func (b *countingBackend) Search(_ context.Context, _ string, _ int) ([]Result, error) {
	b.calls++
	return b.results, b.err
}

func TestCachedHitAndExpiry(t *testing.T) {
	inner := &countingBackend{results: []Result{{Title: "a"}}}
	c := NewCached(inner, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		res, err := c.Search(ctx, "q", 5)
		require.NoError(t, err)
		assert.Equal(t, "a", res[0].Title)
	}
	assert.Equal(t, 1, inner.calls)

	_, err := c.Search(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "count is part of the key")

	now = now.Add(2 * time.Minute)
	_, err = c.Search(ctx, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedReturnsCopies(t *testing.T) {
	inner := &countingBackend{results: []Result{{Title: "a"}}}
	c := NewCached(inner, time.Minute)

	res, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	res[0].Title = "mutated"

	again, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Title)
}

func TestCachedSkipsErrorsAndEmpty(t *testing.T) {
	inner := &countingBackend{err: errors.New("down")}
	c := NewCached(inner, time.Minute)
	ctx := context.Background()

	_, err := c.Search(ctx, "q", 1)
	require.Error(t, err)
	_, err = c.Search(ctx, "q", 1)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)

	inner.err = nil
	_, _ = c.Search(ctx, "empty", 1)
	_, _ = c.Search(ctx, "empty", 1)
	assert.Equal(t, 4, inner.calls)
}

func TestCachedDisabled(t *testing.T) {
	inner := &countingBackend{results: []Result{{Title: "a"}}}
	c := NewCached(inner, 0)
	_, _ = c.Search(context.Background(), "q", 1)
	_, _ = c.Search(context.Background(), "q", 1)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "counting", c.Name())
}
