package vector

import (
	"context"
	"sort"
	"sync"

	"switchboard/internal/domain"
)

// vecIndex is an in-memory index of chunk embeddings, partitioned by user.
// A user's partition is loaded lazily on their first search and updated
// incrementally on Add/DeleteSource.
type vecIndex struct {
	mu    sync.RWMutex
	users map[string]map[string]domain.DocumentChunk // user → id → chunk
}

func newVecIndex() *vecIndex {
	return &vecIndex{
		users: make(map[string]map[string]domain.DocumentChunk),
	}
}

// search performs cosine similarity search over userID's cached chunks.
// Returns nil if the user's partition has not been loaded yet.
func (idx *vecIndex) search(userID string, queryVec []float32, limit int) []domain.ScoredChunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	chunks, loaded := idx.users[userID]
	if !loaded {
		return nil
	}

	candidates := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		sim := cosineSimilarity(queryVec, c.Embedding)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, domain.ScoredChunk{DocumentChunk: c, Score: float64(sim)})
	}
	return topK(candidates, limit)
}

// put adds or updates a chunk in its user's partition, if that partition is
// loaded. Unloaded partitions pick the chunk up from the DB on first search.
func (idx *vecIndex) put(c domain.DocumentChunk) {
	if c.Embedding == nil {
		return
	}
	idx.mu.Lock()
	if chunks, ok := idx.users[c.UserID]; ok {
		chunks[c.ID] = c
	}
	idx.mu.Unlock()
}

// remove deletes a chunk from userID's partition.
func (idx *vecIndex) remove(userID, id string) {
	idx.mu.Lock()
	if chunks, ok := idx.users[userID]; ok {
		delete(chunks, id)
	}
	idx.mu.Unlock()
}

// isLoaded returns whether userID's partition has been populated.
func (idx *vecIndex) isLoaded(userID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.users[userID]
	return ok
}

// size returns the number of cached chunks for userID.
func (idx *vecIndex) size(userID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.users[userID])
}

// loadUser populates userID's partition from the database. Subsequent calls
// are no-ops.
func (idx *vecIndex) loadUser(ctx context.Context, s *Store, userID string) error {
	if idx.isLoaded(userID) {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, source, content, embedding, created_at FROM chunks WHERE user_id = ? AND embedding IS NOT NULL",
		userID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	chunks := make(map[string]domain.DocumentChunk)
	for rows.Next() {
		c, err := scanChunk(rows, s.logger)
		if err != nil || c.Embedding == nil {
			continue
		}
		chunks[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	// A concurrent loader may have won; keep its partition since puts may
	// already have landed in it.
	if _, ok := idx.users[userID]; !ok {
		idx.users[userID] = chunks
	}
	idx.mu.Unlock()
	return nil
}

// topK sorts candidates by score descending and truncates to limit.
func topK(candidates []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
