// Package history provides the Redis-backed conversation history store.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"switchboard/internal/domain"
)

const (
	defaultKeyPrefix = "switchboard:history:"
	sessionIndexKey  = "sessions"
)

// RedisStore implements domain.HistoryStore and domain.SessionReaper on a
// Redis list per session. A sorted set indexes sessions by last update so
// idle ones can be reaped; keys also carry a TTL when one is configured.
type RedisStore struct {
	client      Client
	prefix      string
	maxMessages int
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

var (
	_ domain.HistoryStore  = (*RedisStore)(nil)
	_ domain.SessionReaper = (*RedisStore)(nil)
)

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithMaxMessages caps the stored history per session.
func WithMaxMessages(n int) Option {
	return func(s *RedisStore) { s.maxMessages = n }
}

// WithTTL expires a session's history ttl after its last append.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore creates a store on client.
func NewRedisStore(client Client, logger *slog.Logger, opts ...Option) *RedisStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(sessionID string) string { return s.prefix + sessionID }

func (s *RedisStore) indexKey() string { return s.prefix + sessionIndexKey }

// RecentMessages returns up to limit of the newest messages, oldest first.
// Unknown sessions have no history. Entries that fail to decode are skipped.
func (s *RedisStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if sessionID == "" {
		return nil, domain.NewSubSystemError("history", "RedisStore.RecentMessages", domain.ErrInvalidInput, "empty session id")
	}
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.Range(ctx, s.key(sessionID), start, -1)
	if err != nil {
		return nil, domain.NewSubSystemError("history", "RedisStore.RecentMessages", domain.ErrHistoryStore, err.Error())
	}

	msgs := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			s.logger.Warn("history: corrupt message skipped", "session_id", sessionID, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Append pushes msgs onto the session's list, trims it and refreshes the
// session's position in the reap index.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if sessionID == "" {
		return domain.NewSubSystemError("history", "RedisStore.Append", domain.ErrInvalidInput, "empty session id")
	}
	if len(msgs) == 0 {
		return nil
	}

	now := s.now()
	values := make([]string, len(msgs))
	for i, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values[i] = string(b)
	}

	if err := s.client.PushTrim(ctx, s.key(sessionID), values, int64(s.maxMessages), s.ttl); err != nil {
		return domain.NewSubSystemError("history", "RedisStore.Append", domain.ErrHistoryStore, err.Error())
	}
	if err := s.client.Touch(ctx, s.indexKey(), sessionID, float64(now.Unix())); err != nil {
		return domain.NewSubSystemError("history", "RedisStore.Append", domain.ErrHistoryStore, err.Error())
	}
	return nil
}

// Reap deletes sessions last appended to before cutoff.
func (s *RedisStore) Reap(ctx context.Context, cutoff time.Time) (int, error) {
	// Scores are whole seconds; anything in cutoff's own second but before
	// it is kept until the next sweep.
	stale, err := s.client.Stale(ctx, s.indexKey(), float64(cutoff.Unix()-1))
	if err != nil {
		return 0, domain.NewSubSystemError("history", "RedisStore.Reap", domain.ErrHistoryStore, err.Error())
	}
	if len(stale) == 0 {
		return 0, nil
	}

	keys := make([]string, len(stale))
	for i, id := range stale {
		keys[i] = s.key(id)
	}
	if err := s.client.Forget(ctx, s.indexKey(), stale, keys); err != nil {
		return 0, domain.NewSubSystemError("history", "RedisStore.Reap", domain.ErrHistoryStore, err.Error())
	}
	s.logger.Debug("history: reaped sessions", "count", len(stale))
	return len(stale), nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
