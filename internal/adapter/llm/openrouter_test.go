package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
)

func TestOpenRouterHeaders(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "switchboard", r.Header.Get("X-Title"))
		assert.NotEmpty(t, r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"model":"meta/llama","choices":[{"message":{"role":"assistant","content":"routed"}}]}`))
	})

	p := NewOpenRouterProvider(config.ProviderConfig{Name: "openrouter", BaseURL: srv.URL, APIKey: "or-key", Model: "meta/llama"}, nil)
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "routed", resp.Message.Content)
	assert.Equal(t, "openrouter", p.Name())
}
