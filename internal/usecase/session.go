package usecase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"switchboard/internal/domain"
)

// NewSessionID returns a fresh ULID session identifier.
func NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Session is one conversation's history.
type Session struct {
	mu        sync.RWMutex
	ID        string           `json:"id"`
	Msgs      []domain.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, Msgs: make([]domain.Message, 0), CreatedAt: now, UpdatedAt: now}
}

// Messages returns a copy of the message history.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.Msgs)
}

// SessionManager is the in-memory HistoryStore. When dataDir is set every
// session is also written to <dataDir>/<id>.json and reloaded on first use.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	dataDir     string
	maxMessages int
	now         func() time.Time
}

var (
	_ domain.HistoryStore  = (*SessionManager)(nil)
	_ domain.SessionReaper = (*SessionManager)(nil)
)

// NewSessionManager creates a session manager. An empty dataDir keeps
// history in memory only; maxMessages <= 0 keeps everything.
func NewSessionManager(dataDir string, maxMessages int) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		dataDir:     dataDir,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// validateSessionID checks if a session ID is safe for filesystem use.
func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty: %w", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(id, "/\\\x00") || strings.Contains(id, "..") || filepath.Clean(id) != id {
		return fmt.Errorf("session ID %q is not path-safe: %w", id, domain.ErrInvalidInput)
	}
	return nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
// Unknown sessions have no history.
func (sm *SessionManager) RecentMessages(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, domain.NewSubSystemError("session", "SessionManager.RecentMessages", err, sessionID)
	}
	s := sm.lookup(sessionID, false)
	if s == nil {
		return nil, nil
	}
	msgs := s.Messages()
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Append adds messages, trims to maxMessages, and persists when configured.
func (sm *SessionManager) Append(_ context.Context, sessionID string, msgs ...domain.Message) error {
	if err := validateSessionID(sessionID); err != nil {
		return domain.NewSubSystemError("session", "SessionManager.Append", err, sessionID)
	}
	s := sm.lookup(sessionID, true)
	now := sm.now()

	s.mu.Lock()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		s.Msgs = append(s.Msgs, m)
	}
	if sm.maxMessages > 0 && len(s.Msgs) > sm.maxMessages {
		s.Msgs = slices.Clone(s.Msgs[len(s.Msgs)-sm.maxMessages:])
	}
	s.UpdatedAt = now
	s.mu.Unlock()

	if sm.dataDir == "" {
		return nil
	}
	return domain.WrapOp("SessionManager.Append", sm.save(s))
}

// lookup returns the session, loading it from disk or creating it when
// create is set.
func (sm *SessionManager) lookup(id string, create bool) *Session {
	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok {
		return s
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[id]; ok {
		return s
	}
	if loaded, err := sm.loadFromDisk(id); err == nil {
		sm.sessions[id] = loaded
		return loaded
	}
	if !create {
		return nil
	}
	s = newSession(id, sm.now())
	sm.sessions[id] = s
	return s
}

// Get returns an existing session or ErrSessionNotFound.
func (sm *SessionManager) Get(id string) (*Session, error) {
	if err := validateSessionID(id); err != nil {
		return nil, domain.NewSubSystemError("session", "SessionManager.Get", err, id)
	}
	s := sm.lookup(id, false)
	if s == nil {
		return nil, domain.NewSubSystemError("session", "SessionManager.Get", domain.ErrNotFound, id)
	}
	return s, nil
}

// Delete removes a session from memory and disk.
func (sm *SessionManager) Delete(id string) error {
	if err := validateSessionID(id); err != nil {
		return domain.NewSubSystemError("session", "SessionManager.Delete", err, id)
	}

	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	removed, err := sm.removeFile(id)
	if err != nil {
		return err
	}
	if !ok && !removed {
		return domain.NewSubSystemError("session", "SessionManager.Delete", domain.ErrNotFound, id)
	}
	return nil
}

// ListSessions returns the IDs of sessions held in memory, sorted.
func (sm *SessionManager) ListSessions() []string {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Reap deletes sessions last updated before cutoff.
func (sm *SessionManager) Reap(ctx context.Context, cutoff time.Time) (int, error) {
	sm.mu.RLock()
	var stale []string
	for id, s := range sm.sessions {
		s.mu.RLock()
		if s.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.RUnlock()
	}
	sm.mu.RUnlock()

	if len(stale) == 0 {
		return 0, nil
	}

	sm.mu.Lock()
	for _, id := range stale {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	var errs []error
	for _, id := range stale {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := sm.removeFile(id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(stale), errors.Join(errs...)
}

func (sm *SessionManager) path(id string) string {
	return filepath.Join(sm.dataDir, id+".json")
}

func (sm *SessionManager) save(s *Session) error {
	if err := os.MkdirAll(sm.dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// Write-then-rename so a crash never leaves a truncated file.
	tmp := sm.path(s.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, sm.path(s.ID))
}

func (sm *SessionManager) removeFile(id string) (bool, error) {
	if sm.dataDir == "" {
		return false, nil
	}
	err := os.Remove(sm.path(id))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("remove session file: %w", err)
	}
}

func (sm *SessionManager) loadFromDisk(id string) (*Session, error) {
	if sm.dataDir == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(sm.path(id))
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}
