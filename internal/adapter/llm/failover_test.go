package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

type mockProvider struct {
	name     string
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
	calls    int
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.calls++
	return m.chatFunc(ctx, req)
}
func (m *mockProvider) Name() string { return m.name }

func replying(name, content string) *mockProvider {
	return &mockProvider{name: name, chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}, nil
	}}
}

func failing(name string, err error) *mockProvider {
	return &mockProvider{name: name, chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, err
	}}
}

func TestFailoverPrimarySuccess(t *testing.T) {
	fb := replying("fallback", "fb")
	f := NewFailoverProvider(replying("primary", "primary response"), []domain.LLMProvider{fb}, nil)

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "primary response", resp.Message.Content)
	assert.Zero(t, fb.calls, "fallback not tried")
}

func TestFailoverToSecond(t *testing.T) {
	fb1 := failing("fb1", errors.New("fb1 down"))
	fb2 := replying("fb2", "second fallback")
	f := NewFailoverProvider(failing("primary", errors.New("primary down")), []domain.LLMProvider{fb1, fb2}, nil)

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second fallback", resp.Message.Content)
	assert.Equal(t, 1, fb1.calls)
}

func TestFailoverAllFail(t *testing.T) {
	f := NewFailoverProvider(
		failing("primary", domain.ErrRateLimit),
		[]domain.LLMProvider{failing("fb", domain.ErrUpstream)},
		nil,
	)

	_, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "fb")
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestFailoverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{name: "primary", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		cancel()
		return nil, context.Canceled
	}}
	fb := replying("fb", "never")

	f := NewFailoverProvider(primary, []domain.LLMProvider{fb}, nil)
	_, err := f.Chat(ctx, domain.ChatRequest{})
	require.Error(t, err)
	assert.Zero(t, fb.calls)
}

func TestFailoverName(t *testing.T) {
	f := NewFailoverProvider(replying("openai", ""), nil, nil)
	assert.Equal(t, "openai+failover", f.Name())
}
