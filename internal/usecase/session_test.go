package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func userMsg(s string) domain.Message      { return domain.Message{Role: domain.RoleUser, Content: s} }
func assistantMsg(s string) domain.Message { return domain.Message{Role: domain.RoleAssistant, Content: s} }

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewSessionID())
}

func TestSessionManagerAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	sm := NewSessionManager("", 0)

	msgs, err := sm.RecentMessages(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for i := range 5 {
		require.NoError(t, sm.Append(ctx, "s1", userMsg(fmt.Sprintf("q%d", i)), assistantMsg(fmt.Sprintf("a%d", i))))
	}

	recent, err := sm.RecentMessages(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "a3", recent[0].Content)
	assert.Equal(t, "q4", recent[1].Content)
	assert.Equal(t, "a4", recent[2].Content, "oldest first, newest last")
	assert.False(t, recent[2].Timestamp.IsZero())

	all, err := sm.RecentMessages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestSessionManagerMaxMessages(t *testing.T) {
	ctx := context.Background()
	sm := NewSessionManager("", 4)

	for i := range 6 {
		require.NoError(t, sm.Append(ctx, "s", userMsg(fmt.Sprint(i))))
	}

	s, err := sm.Get("s")
	require.NoError(t, err)
	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "2", msgs[0].Content)
}

func TestSessionManagerRejectsUnsafeIDs(t *testing.T) {
	sm := NewSessionManager(t.TempDir(), 0)
	for _, id := range []string{"", "../escape", "a/b", `a\b`, "nul\x00"} {
		err := sm.Append(context.Background(), id, userMsg("x"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "id %q", id)
	}
}

func TestSessionManagerPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sm := NewSessionManager(dir, 0)
	require.NoError(t, sm.Append(ctx, "persist", userMsg("hello"), assistantMsg("hi there")))
	_, err := os.Stat(filepath.Join(dir, "persist.json"))
	require.NoError(t, err)

	reloaded := NewSessionManager(dir, 0)
	msgs, err := reloaded.RecentMessages(ctx, "persist", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi there", msgs[1].Content)
}

func TestSessionManagerGetNotFound(t *testing.T) {
	sm := NewSessionManager(t.TempDir(), 0)

	_, err := sm.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.CodeSessionNotFound, domain.ErrorCodeOf(err))
}

func TestSessionManagerDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sm := NewSessionManager(dir, 0)
	require.NoError(t, sm.Append(ctx, "del1", userMsg("x")))

	require.NoError(t, sm.Delete("del1"))
	_, err := os.Stat(filepath.Join(dir, "del1.json"))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, sm.ListSessions())

	assert.ErrorIs(t, sm.Delete("del1"), domain.ErrNotFound)
}

func TestSessionManagerReap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sm := NewSessionManager(dir, 0)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return base }
	require.NoError(t, sm.Append(ctx, "old", userMsg("x")))

	sm.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, sm.Append(ctx, "fresh", userMsg("y")))

	n, err := sm.Reap(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"fresh"}, sm.ListSessions())

	_, err = os.Stat(filepath.Join(dir, "old.json"))
	assert.True(t, os.IsNotExist(err))

	n, err = sm.Reap(ctx, base)
	require.NoError(t, err)
	assert.Zero(t, n)
}
