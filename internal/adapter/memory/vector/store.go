package vector

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"switchboard/internal/domain"
)

// Store implements domain.DocumentStore backed by SQLite. Chunks are owned by
// a user and only ever searched within that user's set.
//
// An in-memory vecIndex caches embeddings per user so repeated searches skip
// SQLite I/O. A user's slice of the index is loaded lazily on their first
// search and updated incrementally on Add/DeleteSource.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string
	vecIdx *vecIndex
	now    func() time.Time
}

var _ domain.DocumentStore = (*Store)(nil)

// New opens (or creates) a SQLite database at dbPath, runs migrations, and
// returns a ready Store.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrVectorStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrVectorStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrVectorStore, err)
	}

	return &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		vecIdx: newVecIndex(),
		now:    time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores chunks in a single transaction. Chunks without an ID get a
// random one; chunks with an existing ID are replaced.
func (s *Store) Add(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	now := s.now().UTC()
	for i := range chunks {
		if chunks[i].UserID == "" {
			return domain.NewSubSystemError("vector", "Store.Add", domain.ErrInvalidInput, "chunk without user id")
		}
		if chunks[i].ID == "" {
			id, err := generateID()
			if err != nil {
				return fmt.Errorf("%w: generate id: %v", domain.ErrVectorStore, err)
			}
			chunks[i].ID = id
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `
		INSERT INTO chunks (id, user_id, source, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id   = excluded.user_id,
			source    = excluded.source,
			content   = excluded.content,
			embedding = excluded.embedding
	`

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrVectorStore, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var emb []byte
		if len(c.Embedding) > 0 {
			emb = float32ToBytes(c.Embedding)
		}
		_, err = stmt.ExecContext(ctx,
			c.ID,
			c.UserID,
			c.Source,
			c.Content,
			emb,
			c.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("%w: upsert chunk %q: %v", domain.ErrVectorStore, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrVectorStore, err)
	}

	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			s.vecIdx.put(c)
		}
	}

	s.logger.Debug("document chunks stored", "count", len(chunks), "user_id", chunks[0].UserID)
	return nil
}

// DeleteSource removes every chunk userID ingested from source and reports
// how many were removed. Re-ingesting a file calls this first.
func (s *Store) DeleteSource(ctx context.Context, userID, source string) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE user_id = ? AND source = ?", userID, source)
	if err != nil {
		return 0, fmt.Errorf("%w: select: %v", domain.ErrVectorStore, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: scan: %v", domain.ErrVectorStore, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: select: %v", domain.ErrVectorStore, err)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE user_id = ? AND source = ?", userID, source); err != nil {
		return 0, fmt.Errorf("%w: delete: %v", domain.ErrVectorStore, err)
	}
	for _, id := range ids {
		s.vecIdx.remove(userID, id)
	}
	return len(ids), nil
}

// Count returns the number of chunks userID owns.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", domain.ErrVectorStore, err)
	}
	return n, nil
}

// generateID returns a short random hex ID (8 bytes = 16 hex chars).
func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// scanChunk reads id, user_id, source, content, embedding, created_at. A
// corrupt timestamp is logged, not returned, since the content is still usable.
func scanChunk(row interface{ Scan(dest ...any) error }, logger *slog.Logger) (domain.DocumentChunk, error) {
	var (
		c         domain.DocumentChunk
		embBlob   []byte
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Source, &c.Content, &embBlob, &createdAt); err != nil {
		return c, err
	}
	c.Embedding = bytesToFloat32(embBlob)
	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		logger.Warn("vector store: corrupt created_at", "id", c.ID, "error", err)
	}
	return c, nil
}
