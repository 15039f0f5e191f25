package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"nan", []float32{float32(math.NaN()), 1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, float32(math.MaxFloat32)}
	assert.Equal(t, in, bytesToFloat32(float32ToBytes(in)))
	assert.Nil(t, bytesToFloat32([]byte{1, 2, 3}))
	assert.Nil(t, bytesToFloat32(nil))
}

func TestTopK(t *testing.T) {
	in := []domain.ScoredChunk{
		{DocumentChunk: domain.DocumentChunk{ID: "low"}, Score: 0.1},
		{DocumentChunk: domain.DocumentChunk{ID: "high"}, Score: 0.9},
		{DocumentChunk: domain.DocumentChunk{ID: "mid"}, Score: 0.5},
	}
	out := topK(in, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].ID)
	assert.Equal(t, "mid", out[1].ID)
}

func TestSimilaritySearchEmptyVector(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SimilaritySearch(context.Background(), "u1", nil, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestSimilaritySearchDefaultK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := make([]domain.DocumentChunk, 6)
	for i := range chunks {
		chunks[i] = domain.DocumentChunk{UserID: "u1", Content: "c", Embedding: []float32{1, float32(i)}}
	}
	require.NoError(t, s.Add(ctx, chunks))

	hits, err := s.SimilaritySearch(ctx, "u1", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, defaultSearchK)
}

func TestSimilaritySearchSkipsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.DocumentChunk{
		chunk("two", "u1", "x", "2d", 1, 0),
		chunk("three", "u1", "x", "3d", 1, 0, 0),
	}))

	hits, err := s.SimilaritySearch(ctx, "u1", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "three", hits[0].ID)
}

func TestSearchDBMatchesIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []domain.DocumentChunk{
		chunk("a", "u1", "x", "a", 1, 0),
		chunk("b", "u1", "x", "b", 0.5, 0.5),
		chunk("c", "u1", "x", "c", 0, 1),
	}))

	fromDB, err := s.searchDB(ctx, "u1", []float32{1, 0.1}, 3)
	require.NoError(t, err)
	fromIdx, err := s.SimilaritySearch(ctx, "u1", []float32{1, 0.1}, 3)
	require.NoError(t, err)

	require.Len(t, fromDB, len(fromIdx))
	for i := range fromDB {
		assert.Equal(t, fromIdx[i].ID, fromDB[i].ID)
		assert.InDelta(t, fromIdx[i].Score, fromDB[i].Score, 1e-9)
	}
}
