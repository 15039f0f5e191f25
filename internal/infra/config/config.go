package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Routing   RoutingConfig   `yaml:"routing"`
	History   HistoryConfig   `yaml:"history"`
	Documents DocumentsConfig `yaml:"documents"`
	Agents    AgentsConfig    `yaml:"agents"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"` // 0 or >=1 samples everything
}

// LLMConfig holds chat model provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       LLMRateLimitConfig   `yaml:"rate_limit"`
}

// ProviderConfig holds settings for a single OpenAI-compatible provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// FailoverConfig lists providers tried, in order, after the default fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LLMRateLimitConfig caps outbound chat requests per provider.
type LLMRateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", ""
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"` // 0 disables the cache
}

// RoutingConfig holds the orchestrator's tunable constants.
type RoutingConfig struct {
	HighConfidence         float64       `yaml:"high_confidence"`
	MediumConfidence       float64       `yaml:"medium_confidence"`
	CompletenessWeight     float64       `yaml:"completeness_weight"`
	SummarizerMargin       float64       `yaml:"summarizer_margin"`
	MinOutputLength        int           `yaml:"min_output_length"`
	DocumentProbeMinLength int           `yaml:"document_probe_min_length"`
	AgentTimeout           time.Duration `yaml:"agent_timeout"`
	MaxDelegationDepth     int           `yaml:"max_delegation_depth"`
	MaxParallel            int           `yaml:"max_parallel"`
	HistoryLimit           int           `yaml:"history_limit"`
}

// HistoryConfig selects and tunes the conversation history store.
type HistoryConfig struct {
	Backend      string        `yaml:"backend"` // "memory" | "redis"
	DataDir      string        `yaml:"data_dir"`
	RedisURL     string        `yaml:"redis_url"`
	MaxMessages  int           `yaml:"max_messages"` // retained per session
	SessionTTL   time.Duration `yaml:"session_ttl"`
	ReapSchedule string        `yaml:"reap_schedule"` // cron expression
}

// DocumentsConfig holds the per-user document chunk store settings.
type DocumentsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	TopK      int    `yaml:"top_k"`
	ChunkSize int    `yaml:"chunk_size"`
	UserID    string `yaml:"user_id"` // owner for CLI ingestion and chat
}

// AgentsConfig controls which agents are registered and their collaborators.
type AgentsConfig struct {
	Enabled []string `yaml:"enabled"` // empty registers every built-in agent
	Topic   string   `yaml:"topic"`

	Weather WeatherConfig `yaml:"weather"`
	Search  SearchConfig  `yaml:"search"`

	TimeZone string `yaml:"time_zone"`
}

// WeatherConfig holds OpenWeatherMap settings.
type WeatherConfig struct {
	APIKey            string        `yaml:"api_key,omitempty"`
	BaseURL           string        `yaml:"base_url"`
	Units             string        `yaml:"units"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// SearchConfig holds the SearXNG backend settings for the search agent.
type SearchConfig struct {
	SearXNGURL string        `yaml:"searxng_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GatewayConfig holds HTTP channel settings.
type GatewayConfig struct {
	Addr           string        `yaml:"addr"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	Burst          int           `yaml:"burst"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// defaultDataDir returns the persistent data directory under $HOME/.switchboard/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".switchboard", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			ServiceName: "switchboard",
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: LLMRateLimitConfig{
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  1000,
		},
		Routing: RoutingConfig{
			HighConfidence:         0.6,
			MediumConfidence:       0.4,
			CompletenessWeight:     0.6,
			SummarizerMargin:       0.15,
			MinOutputLength:        10,
			DocumentProbeMinLength: 50,
			AgentTimeout:           30 * time.Second,
			MaxDelegationDepth:     5,
			MaxParallel:            8,
			HistoryLimit:           10,
		},
		History: HistoryConfig{
			Backend:      "memory",
			DataDir:      filepath.Join(dataDir, "sessions"),
			MaxMessages:  200,
			SessionTTL:   24 * time.Hour,
			ReapSchedule: "@every 15m",
		},
		Documents: DocumentsConfig{
			Enabled:   false,
			Path:      filepath.Join(dataDir, "documents.db"),
			TopK:      4,
			ChunkSize: 1000,
			UserID:    "local",
		},
		Agents: AgentsConfig{
			Weather: WeatherConfig{
				BaseURL:           "https://api.openweathermap.org/data/2.5",
				Units:             "metric",
				Timeout:           10 * time.Second,
				RequestsPerMinute: 30,
			},
			Search: SearchConfig{
				SearXNGURL: "http://localhost:6060",
				MaxResults: 5,
				Timeout:    15 * time.Second,
			},
			TimeZone: "UTC",
		},
		Gateway: GatewayConfig{
			Addr:           ":8090",
			RequestsPerMin: 60,
			Burst:          10,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   90 * time.Second,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, decrypts
// secrets, and validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("SWITCHBOARD_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SWITCHBOARD_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	envString("SWITCHBOARD_LOGGER_LEVEL", &cfg.Logger.Level)
	envString("SWITCHBOARD_LOGGER_FORMAT", &cfg.Logger.Format)
	envBool("SWITCHBOARD_TRACER_ENABLED", &cfg.Tracer.Enabled)
	envString("SWITCHBOARD_TRACER_EXPORTER", &cfg.Tracer.Exporter)

	envString("SWITCHBOARD_LLM_DEFAULT_PROVIDER", &cfg.LLM.DefaultProvider)
	// Per-provider API key overrides: SWITCHBOARD_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("SWITCHBOARD_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(strings.ReplaceAll(cfg.LLM.Providers[i].Name, "-", "_")))
		envString(envKey, &cfg.LLM.Providers[i].APIKey)
	}

	envString("SWITCHBOARD_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	envString("SWITCHBOARD_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)

	envFloat("SWITCHBOARD_ROUTING_HIGH_CONFIDENCE", &cfg.Routing.HighConfidence)
	envFloat("SWITCHBOARD_ROUTING_MEDIUM_CONFIDENCE", &cfg.Routing.MediumConfidence)
	envDuration("SWITCHBOARD_ROUTING_AGENT_TIMEOUT", &cfg.Routing.AgentTimeout)
	envInt("SWITCHBOARD_ROUTING_HISTORY_LIMIT", &cfg.Routing.HistoryLimit)

	envString("SWITCHBOARD_HISTORY_BACKEND", &cfg.History.Backend)
	envString("SWITCHBOARD_HISTORY_REDIS_URL", &cfg.History.RedisURL)
	envDuration("SWITCHBOARD_HISTORY_SESSION_TTL", &cfg.History.SessionTTL)

	envBool("SWITCHBOARD_DOCUMENTS_ENABLED", &cfg.Documents.Enabled)
	envString("SWITCHBOARD_DOCUMENTS_PATH", &cfg.Documents.Path)

	if v := os.Getenv("SWITCHBOARD_AGENTS_ENABLED"); v != "" {
		cfg.Agents.Enabled = splitAndTrim(v, ",")
	}
	envString("SWITCHBOARD_AGENTS_TOPIC", &cfg.Agents.Topic)
	envString("SWITCHBOARD_WEATHER_API_KEY", &cfg.Agents.Weather.APIKey)
	envString("SWITCHBOARD_SEARXNG_URL", &cfg.Agents.Search.SearXNGURL)
	envString("SWITCHBOARD_TIME_ZONE", &cfg.Agents.TimeZone)

	envString("SWITCHBOARD_GATEWAY_ADDR", &cfg.Gateway.Addr)
	if v := os.Getenv("SWITCHBOARD_GATEWAY_TRUSTED_PROXIES"); v != "" {
		cfg.Gateway.TrustedProxies = splitAndTrim(v, ",")
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

// splitAndTrim splits s by sep, trims each element, and drops empties.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Provider returns the provider config with the given name.
func (c *LLMConfig) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// AgentEnabled reports whether name should be registered.
func (c *AgentsConfig) AgentEnabled(name string) bool {
	if len(c.Enabled) == 0 {
		return true
	}
	for _, n := range c.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
