package domain

import (
	"context"
	"time"
)

// HistoryStore persists per-session chat history.
type HistoryStore interface {
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// Append adds messages to the end of a session's history.
	Append(ctx context.Context, sessionID string, msgs ...Message) error
}

// SessionReaper is implemented by history stores that can drop idle sessions.
type SessionReaper interface {
	// Reap removes sessions not updated since before cutoff and reports how
	// many were removed.
	Reap(ctx context.Context, cutoff time.Time) (int, error)
}

// DocumentChunk is a piece of an uploaded document with its embedding.
type DocumentChunk struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"` // original file name
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredChunk is a similarity search hit.
type ScoredChunk struct {
	DocumentChunk
	Score float64 `json:"score"`
}

// DocumentStore holds document chunks for similarity search.
type DocumentStore interface {
	Add(ctx context.Context, chunks []DocumentChunk) error
	// SimilaritySearch returns the k chunks owned by userID closest to vec,
	// best first.
	SimilaritySearch(ctx context.Context, userID string, vec []float32, k int) ([]ScoredChunk, error)
}
