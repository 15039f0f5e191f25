package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"switchboard/internal/adapter/history"
	"switchboard/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}

// runDoctor executes all health checks and reports results to out.
func runDoctor(cfgPath string, out io.Writer) error {
	// Some checks work without a config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "History backend", Fn: checkHistoryBackend},
		{Name: "Documents", Fn: checkDocuments},
		{Name: "Weather", Fn: checkWeather},
		{Name: "Time zone", Fn: checkTimeZone},
		{Name: "SearXNG", Fn: checkSearXNG},
	}

	fmt.Fprintln(out, "switchboard doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}
	}

	pass, warn, fail := summarize(results)
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(out, "\nFix the FAIL issues above before serving.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(out, "\nswitchboard should work, but some agents may be degraded.")
	} else {
		fmt.Fprintln(out, "\nAll checks passed.")
	}
	return nil
}

func summarize(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file parsed. A missing file is
// only a warning: defaults plus SWITCHBOARD_* variables are a valid setup.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check the YAML syntax and values in %s", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkLLMAPIKey verifies the configured providers carry API keys. Local
// ollama providers need none.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		switch {
		case p.APIKey != "", isLocal(p):
			withKey = append(withKey, p.Name)
		default:
			withoutKey = append(withoutKey, p.Name)
		}
	}

	if len(withKey) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set API keys via environment variables (e.g. SWITCHBOARD_LLM_PROVIDER_OPENAI_API_KEY)",
		}
	}
	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkLLMConnectivity tests if the default provider's API is reachable.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	provider, ok := cfg.LLM.Provider(cfg.LLM.DefaultProvider)
	if !ok {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}
	if provider.APIKey == "" && !isLocal(provider) {
		return CheckResult{
			Status:  StatusWarn,
			Message: "skipped: no API key for default provider",
		}
	}

	endpoint := providerEndpoint(provider)
	start := time.Now()
	if err := probe(endpoint, 10*time.Second); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check the provider base_url and your network",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, time.Since(start).Milliseconds()),
	}
}

func isLocal(p config.ProviderConfig) bool {
	return p.Type == "ollama" || (p.Type == "" && p.Name == "ollama")
}

// providerEndpoint returns a URL that answers GET for the provider.
func providerEndpoint(p config.ProviderConfig) string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/") + "/models"
	}
	kind := p.Type
	if kind == "" {
		kind = p.Name
	}
	switch kind {
	case "openrouter":
		return "https://openrouter.ai/api/v1/models"
	case "groq":
		return "https://api.groq.com/openai/v1/models"
	case "ollama":
		return "http://localhost:11434/v1/models"
	default:
		return "https://api.openai.com/v1/models"
	}
}

// checkHistoryBackend verifies the session store: Redis answers PING, or the
// file-backed store's directory is writable.
func checkHistoryBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}

	if cfg.History.Backend == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := history.Dial(ctx, cfg.History.RedisURL)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("redis unavailable: %v", err),
				Fix:     "Start Redis or set history.backend: memory",
			}
		}
		client.Close()
		return CheckResult{Status: StatusPass, Message: "redis reachable"}
	}

	if cfg.History.DataDir == "" {
		return CheckResult{Status: StatusPass, Message: "history kept in memory only"}
	}
	if res, ok := checkWritableDir(cfg.History.DataDir); !ok {
		return res
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("session directory %s writable", cfg.History.DataDir),
	}
}

// checkDocuments verifies document search has both a store and an embedder.
func checkDocuments(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Documents.Enabled {
		return CheckResult{Status: StatusPass, Message: "document search disabled"}
	}
	if cfg.Embedding.Provider == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "documents enabled but no embedding provider; document_search will not register",
			Fix:     "Set embedding.provider: openai",
		}
	}
	if res, ok := checkWritableDir(filepath.Dir(cfg.Documents.Path)); !ok {
		return res
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("document store at %s", cfg.Documents.Path),
	}
}

// checkWeather warns when the weather agent is enabled without a key.
func checkWeather(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Agents.AgentEnabled("weather") && !cfg.Agents.AgentEnabled("open_weather_map") {
		return CheckResult{Status: StatusPass, Message: "weather agent disabled"}
	}
	if cfg.Agents.Weather.APIKey == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no OpenWeatherMap API key; weather questions will fail",
			Fix:     "Set SWITCHBOARD_WEATHER_API_KEY",
		}
	}
	return CheckResult{Status: StatusPass, Message: "OpenWeatherMap key configured"}
}

// checkTimeZone verifies the default zone of the time agent resolves.
func checkTimeZone(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	zone := cfg.Agents.TimeZone
	if zone == "" {
		zone = "UTC"
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("unknown time zone %q", zone),
			Fix:     "Use an IANA zone name such as Europe/Madrid",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("default zone %s", zone)}
}

// checkSearXNG checks if SearXNG is running for web search.
func checkSearXNG(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check: config not loaded"}
	}
	url := cfg.Agents.Search.SearXNGURL
	if url == "" {
		return CheckResult{
			Status:  StatusPass,
			Message: "no SearXNG instance configured; search and research are disabled",
		}
	}

	if err := probe(url, 5*time.Second); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("SearXNG not reachable at %s: %v", url, err),
			Fix:     "Start SearXNG or clear agents.search.searxng_url",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("SearXNG reachable at %s", url),
	}
}

// probe issues a GET and treats any HTTP answer below 500 as reachable.
func probe(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// checkWritableDir creates dir if needed and verifies a file can be written.
func checkWritableDir(dir string) (CheckResult, bool) {
	absDir, _ := filepath.Abs(dir)
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("directory %s cannot be created: %v", absDir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
		}, false
	}
	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}, false
	}
	os.Remove(testFile)
	return CheckResult{}, true
}
