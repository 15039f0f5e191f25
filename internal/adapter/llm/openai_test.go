package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProviderChat(t *testing.T) {
	var got openaiRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(openaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: "Hello!"},
				FinishReason: "stop",
			}},
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
			Created: 1700000000,
		})
	})

	p := NewOpenAIProvider(config.ProviderConfig{
		Name: "openai", BaseURL: srv.URL + "/", APIKey: "test-key", Model: "gpt-4o-mini",
		MaxTokens: 256, Temperature: 0.2,
	}, nil)

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello!", resp.Message.Content)
	assert.Equal(t, "assistant", resp.Message.Role)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
	assert.Equal(t, time.Unix(1700000000, 0), resp.CreatedAt)

	assert.Equal(t, "gpt-4o-mini", got.Model, "provider model fills an empty request model")
	assert.Equal(t, 256, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Hi", got.Messages[0].Content)
}

func TestOpenAIProviderNoAPIKey(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"local"}}]}`))
	})

	p := NewOpenAIProvider(config.ProviderConfig{Name: "local", Type: "ollama", BaseURL: srv.URL}, nil)
	resp, err := p.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "local", resp.Message.Content)
}

func TestOpenAIProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":"slow down"}`, domain.ErrRateLimit},
		{"auth", http.StatusUnauthorized, `{"error":"bad key"}`, domain.ErrAuthInvalid},
		{"server", http.StatusBadGateway, `bad gateway`, domain.ErrUpstream},
		{"bad json", http.StatusOK, `not json`, domain.ErrProviderError},
		{"no choices", http.StatusOK, `{"choices":[]}`, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			p := NewOpenAIProvider(config.ProviderConfig{Name: "openai", BaseURL: srv.URL, APIKey: "k"}, nil)
			_, err := p.Chat(context.Background(), domain.ChatRequest{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestOpenAIProviderContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	t.Cleanup(func() { close(release) })
	p := NewOpenAIProvider(config.ProviderConfig{Name: "openai", BaseURL: srv.URL}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, domain.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestNewProviderTypes(t *testing.T) {
	tests := []struct {
		cfg     config.ProviderConfig
		baseURL string
	}{
		{config.ProviderConfig{Name: "openai"}, "https://api.openai.com/v1"},
		{config.ProviderConfig{Name: "groq"}, "https://api.groq.com/openai/v1"},
		{config.ProviderConfig{Name: "local", Type: "ollama"}, "http://localhost:11434/v1"},
		{config.ProviderConfig{Name: "router", Type: "openrouter"}, "https://openrouter.ai/api/v1"},
		{config.ProviderConfig{Name: "custom", BaseURL: "http://llm:8000/v1/"}, "http://llm:8000/v1"},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.cfg, nil)
		require.NoError(t, err, tt.cfg.Name)
		oai, ok := p.(*OpenAIProvider)
		require.True(t, ok)
		assert.Equal(t, tt.baseURL, oai.baseURL, tt.cfg.Name)
		assert.Equal(t, tt.cfg.Name, p.Name())
	}

	_, err := NewProvider(config.ProviderConfig{Name: "x", Type: "bedrock"}, nil)
	assert.Error(t, err)
}
