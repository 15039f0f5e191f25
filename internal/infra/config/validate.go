package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateLLM(cfg, ve)
	validateEmbedding(cfg, ve)
	validateRouting(cfg, ve)
	validateHistory(cfg, ve)
	validateDocuments(cfg, ve)
	validateAgents(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogFormats = map[string]bool{"": true, "text": true, "json": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if cfg.Tracer.SampleRatio < 0 {
		ve.Add("tracer.sample_ratio must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"ollama":     true,
	"groq":       true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cfg.LLM.RateLimit.Enabled && cfg.LLM.RateLimit.RequestsPerMinute <= 0 {
		ve.Add("llm.rate_limit.requests_per_minute must be > 0 when enabled")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, openrouter, ollama, groq)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via SWITCHBOARD_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
}

func validateEmbedding(cfg *Config, ve *ValidationError) {
	e := cfg.Embedding
	switch e.Provider {
	case "", "openai":
	default:
		ve.Add("embedding.provider %q is invalid (want: openai)", e.Provider)
	}
	if e.CacheSize < 0 {
		ve.Add("embedding.cache_size must be >= 0")
	}
	if cfg.Documents.Enabled && e.Provider == "" {
		ve.Add("embedding.provider is required when documents are enabled")
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	r := cfg.Routing
	for name, v := range map[string]float64{
		"high_confidence":     r.HighConfidence,
		"medium_confidence":   r.MediumConfidence,
		"completeness_weight": r.CompletenessWeight,
		"summarizer_margin":   r.SummarizerMargin,
	} {
		if v < 0 || v > 1 {
			ve.Add("routing.%s must be between 0 and 1", name)
		}
	}
	if r.MediumConfidence > r.HighConfidence {
		ve.Add("routing.medium_confidence must not exceed routing.high_confidence")
	}
	if r.AgentTimeout <= 0 {
		ve.Add("routing.agent_timeout must be > 0")
	}
	if r.MaxDelegationDepth <= 0 {
		ve.Add("routing.max_delegation_depth must be > 0")
	}
	if r.MaxParallel <= 0 {
		ve.Add("routing.max_parallel must be > 0")
	}
	if r.HistoryLimit < 0 {
		ve.Add("routing.history_limit must be >= 0")
	}
	if r.MinOutputLength < 0 || r.DocumentProbeMinLength < 0 {
		ve.Add("routing output length thresholds must be >= 0")
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	h := cfg.History
	switch h.Backend {
	case "memory":
	case "redis":
		if h.RedisURL == "" {
			ve.Add("history.redis_url is required when backend is redis")
		} else if u, err := url.Parse(h.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			ve.Add("history.redis_url must be a redis:// or rediss:// URL")
		}
	default:
		ve.Add("history.backend %q is invalid (want: memory, redis)", h.Backend)
	}
	if h.MaxMessages <= 0 {
		ve.Add("history.max_messages must be > 0")
	}
	if h.SessionTTL < 0 {
		ve.Add("history.session_ttl must be >= 0")
	}
	if h.ReapSchedule != "" {
		if _, err := cron.ParseStandard(h.ReapSchedule); err != nil {
			ve.Add("history.reap_schedule %q is invalid: %v", h.ReapSchedule, err)
		}
	}
}

func validateDocuments(cfg *Config, ve *ValidationError) {
	d := cfg.Documents
	if !d.Enabled {
		return
	}
	if d.Path == "" {
		ve.Add("documents.path is required when documents are enabled")
	}
	if d.TopK <= 0 {
		ve.Add("documents.top_k must be > 0")
	}
	if d.ChunkSize < 100 {
		ve.Add("documents.chunk_size must be >= 100")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	a := cfg.Agents
	seen := make(map[string]bool)
	for i, name := range a.Enabled {
		if name == "" {
			ve.Add("agents.enabled[%d] must not be empty", i)
			continue
		}
		if seen[name] {
			ve.Add("agents.enabled[%d]: duplicate agent %q", i, name)
		}
		seen[name] = true
	}
	if a.Weather.RequestsPerMinute < 0 {
		ve.Add("agents.weather.requests_per_minute must be >= 0")
	}
	if a.Search.SearXNGURL != "" {
		if u, err := url.Parse(a.Search.SearXNGURL); err != nil || u.Host == "" {
			ve.Add("agents.search.searxng_url %q is not a valid URL", a.Search.SearXNGURL)
		}
	}
	if a.Search.MaxResults < 0 {
		ve.Add("agents.search.max_results must be >= 0")
	}
	if a.TimeZone != "" {
		if _, err := time.LoadLocation(a.TimeZone); err != nil {
			ve.Add("agents.time_zone %q is invalid: %v", a.TimeZone, err)
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr must not be empty")
		return
	}
	if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
	}
	if g.RequestsPerMin < 0 || g.Burst < 0 {
		ve.Add("gateway rate limit values must be >= 0")
	}
}
