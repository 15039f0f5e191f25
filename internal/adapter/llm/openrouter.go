package llm

import (
	"log/slog"
	"net/http"

	"switchboard/internal/infra/config"
)

// openrouterTransport injects the OpenRouter attribution headers
// (HTTP-Referer and X-Title) into every request.
type openrouterTransport struct {
	base http.RoundTripper
}

func (t *openrouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", "https://github.com/switchboard-ai/switchboard")
	clone.Header.Set("X-Title", "switchboard")
	return t.base.RoundTrip(clone)
}

// NewOpenRouterProvider creates an OpenAI-compatible provider for the
// OpenRouter API.
func NewOpenRouterProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	if cfg.Type == "" {
		cfg.Type = "openrouter"
	}
	client := NewHTTPClient(cfg)
	client.Transport = &openrouterTransport{base: client.Transport}
	return newOpenAIProvider(cfg, client, logger)
}
