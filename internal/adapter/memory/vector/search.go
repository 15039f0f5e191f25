package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

const defaultSearchK = 4

// SimilaritySearch implements domain.DocumentStore. It returns up to k of
// userID's chunks with positive cosine similarity to vec, best first. Chunks
// whose embedding dimension differs from vec never match.
func (s *Store) SimilaritySearch(ctx context.Context, userID string, vec []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = defaultSearchK
	}

	ctx, span := tracer.StartSpan(ctx, "vector.search")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("vector.user_id", userID),
		tracer.IntAttr("vector.k", k),
		tracer.IntAttr("vector.dimensions", len(vec)),
	)

	if len(vec) == 0 {
		err := domain.NewSubSystemError("vector", "Store.SimilaritySearch", domain.ErrInvalidInput, "empty query vector")
		tracer.RecordError(span, err)
		return nil, err
	}

	if err := s.vecIdx.loadUser(ctx, s, userID); err != nil {
		s.logger.Warn("vector store: failed to load vec index, falling back to DB scan",
			"user_id", userID, "error", err)
		results, err := s.searchDB(ctx, userID, vec, k)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		span.SetAttributes(tracer.IntAttr("vector.results", len(results)))
		tracer.SetOK(span)
		return results, nil
	}

	results := s.vecIdx.search(userID, vec, k)
	span.SetAttributes(tracer.IntAttr("vector.results", len(results)))
	tracer.SetOK(span)
	return results, nil
}

// searchDB scans userID's chunks in the database, used when the in-memory
// index cannot be loaded.
func (s *Store) searchDB(ctx context.Context, userID string, vec []float32, k int) ([]domain.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, source, content, embedding, created_at FROM chunks WHERE user_id = ? AND embedding IS NOT NULL",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorSearch, err)
	}
	defer rows.Close()

	var candidates []domain.ScoredChunk
	for rows.Next() {
		c, err := scanChunk(rows, s.logger)
		if err != nil {
			continue
		}
		sim := cosineSimilarity(vec, c.Embedding)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, domain.ScoredChunk{DocumentChunk: c, Score: float64(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVectorSearch, err)
	}
	return topK(candidates, k), nil
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||).
// Returns 0 for zero-length vectors, length mismatch, or NaN/Inf results.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	result := dot / denom
	if math.IsNaN(float64(result)) || math.IsInf(float64(result), 0) {
		return 0
	}
	return result
}

// float32ToBytes converts a float32 slice to little-endian bytes.
func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32 converts little-endian bytes back to a float32 slice.
func bytesToFloat32(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
