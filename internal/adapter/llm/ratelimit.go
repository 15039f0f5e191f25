package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"switchboard/internal/domain"
)

// RateLimitedProvider spaces outbound chat requests so a burst of parallel
// agent runs cannot exceed a provider's request quota. Callers wait for a
// token; the wait honors ctx.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)

// NewRateLimitedProvider allows requestsPerMinute sustained with the given burst.
func NewRateLimitedProvider(inner domain.LLMProvider, requestsPerMinute, burst int) *RateLimitedProvider {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider %q: %w: %w", p.inner.Name(), domain.ErrRateLimit, err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
