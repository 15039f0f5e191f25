package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextSessionID(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "abc")
	assert.Equal(t, "abc", SessionIDFromContext(ctx))
	assert.Empty(t, SessionIDFromContext(context.Background()))
}

func TestContextRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "01H")
	assert.Equal(t, "01H", RequestIDFromContext(ctx))
}

func TestAgentContextDerive(t *testing.T) {
	root := NewAgentContext("s1", "who founded acme?", []Message{{Role: RoleUser, Content: "hi"}})
	root.UserID = "u1"
	root = root.WithValue(MetaLanguage, "en")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	child := root.Derive("research", "who founded acme?", now)

	assert.Equal(t, "research", child.AgentName)
	assert.Equal(t, len("who founded acme?"), child.InputLength)
	assert.Equal(t, now, child.Timestamp)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, []string{"research"}, child.Chain)

	assert.Equal(t, "s1", child.SessionID)
	assert.Equal(t, "u1", child.UserID)
	assert.Equal(t, "en", child.Value(MetaLanguage))
	require.Len(t, child.History, 1)

	grandchild := child.Derive("search", "acme", now)
	assert.Equal(t, 2, grandchild.Depth)
	assert.Equal(t, []string{"research", "search"}, grandchild.Chain)
	assert.Equal(t, 4, grandchild.InputLength)
}

func TestAgentContextDeriveCountsRunes(t *testing.T) {
	child := NewAgentContext("s", "", nil).Derive("general", "¿qué hora es?", time.Now())
	assert.Equal(t, 13, child.InputLength)
	assert.Equal(t, "¿qué hora es?", child.Input)
}

func TestAgentContextSiblingIsolation(t *testing.T) {
	root := NewAgentContext("s1", "q", nil).WithValue("k", "root")

	a := root.WithValue("k", "a")
	b := root.WithValue("extra", "b")

	assert.Equal(t, "root", root.Value("k"))
	assert.Equal(t, "a", a.Value("k"))
	assert.Equal(t, "root", b.Value("k"))
	assert.Empty(t, a.Value("extra"))

	a.Chain = append(a.Chain, "mutated")
	assert.Empty(t, root.Chain)
}

func TestAgentContextCloneNil(t *testing.T) {
	var ac *AgentContext
	cp := ac.Clone()
	require.NotNil(t, cp)
	assert.Empty(t, cp.Value("anything"))
	_, ok := ac.LastMessage()
	assert.False(t, ok)
}

type apiKey string

func TestCapabilities(t *testing.T) {
	root := NewAgentContext("s1", "q", nil)
	_, ok := CapabilityOf[apiKey](root)
	assert.False(t, ok)

	withKey := WithCapability(root, apiKey("secret"))
	got, ok := CapabilityOf[apiKey](withKey)
	require.True(t, ok)
	assert.Equal(t, apiKey("secret"), got)

	// Distinct types never collide even when the underlying type matches.
	_, ok = CapabilityOf[string](withKey)
	assert.False(t, ok)

	_, ok = CapabilityOf[apiKey](root)
	assert.False(t, ok, "parent must not see child capability")

	derived := withKey.Derive("general", "q", time.Now())
	got, ok = CapabilityOf[apiKey](derived)
	require.True(t, ok)
	assert.Equal(t, apiKey("secret"), got)
}

func TestLastMessage(t *testing.T) {
	ac := NewAgentContext("s", "q", []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "second"},
	})
	m, ok := ac.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "second", m.Content)
}
