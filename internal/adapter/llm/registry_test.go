package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(replying("openai", "")))
	require.NoError(t, r.Register(replying("groq", "")))

	err := r.Register(replying("openai", ""))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	p, err := r.Get("groq")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []string{"groq", "openai"}, r.List())
}

func TestBuildFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "openai",
		Providers: []config.ProviderConfig{
			{Name: "openai", APIKey: "k1"},
			{Name: "groq", APIKey: "k2"},
		},
		Failover:       config.FailoverConfig{Enabled: true, Fallbacks: []string{"groq"}},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, MaxFailures: 3},
		RateLimit:      config.LLMRateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 5},
	}

	reg, def, err := BuildFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"groq", "openai"}, reg.List())
	assert.Equal(t, "openai+failover", def.Name())

	p, err := reg.Get("openai")
	require.NoError(t, err)
	cb, ok := p.(*CircuitBreakerProvider)
	require.True(t, ok, "circuit breaker is outermost, got %T", p)
	_, ok = cb.inner.(*RateLimitedProvider)
	assert.True(t, ok, "rate limiter wraps the raw provider")
}

func TestBuildFromConfigPlain(t *testing.T) {
	_, def, err := BuildFromConfig(config.LLMConfig{
		DefaultProvider: "openai",
		Providers:       []config.ProviderConfig{{Name: "openai", APIKey: "k"}},
	}, nil)
	require.NoError(t, err)
	_, ok := def.(*OpenAIProvider)
	assert.True(t, ok)
}

func TestBuildFromConfigErrors(t *testing.T) {
	_, _, err := BuildFromConfig(config.LLMConfig{DefaultProvider: "missing"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = BuildFromConfig(config.LLMConfig{
		DefaultProvider: "openai",
		Providers:       []config.ProviderConfig{{Name: "openai"}},
		Failover:        config.FailoverConfig{Enabled: true, Fallbacks: []string{"groq"}},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = BuildFromConfig(config.LLMConfig{
		DefaultProvider: "x",
		Providers:       []config.ProviderConfig{{Name: "x", Type: "bedrock"}},
	}, nil)
	assert.Error(t, err)
}
