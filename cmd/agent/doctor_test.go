package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"switchboard/internal/infra/config"
)

func writeTestFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestCheckConfigFile_NotFound(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/config.yaml", nil)
	result := fn(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_ParseError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "invalid: {{yaml"); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, &config.ValidationError{Errors: []string{"bad yaml"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for parse error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for parse error")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "agents:\n  topic: cooking\n"); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, nil)
	result := fn(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS for valid config, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckLLMAPIKey(t *testing.T) {
	tests := []struct {
		name      string
		providers []config.ProviderConfig
		want      CheckStatus
	}{
		{"no providers", nil, StatusFail},
		{"all keys", []config.ProviderConfig{{Name: "openai", APIKey: "sk-1"}, {Name: "groq", APIKey: "gsk"}}, StatusPass},
		{"one missing", []config.ProviderConfig{{Name: "openai", APIKey: "sk-1"}, {Name: "groq"}}, StatusWarn},
		{"all missing", []config.ProviderConfig{{Name: "openai"}}, StatusFail},
		{"local ollama", []config.ProviderConfig{{Name: "local", Type: "ollama"}}, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.LLM.Providers = tt.providers
			if got := checkLLMAPIKey(cfg).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckLLMAPIKey_NilConfig(t *testing.T) {
	if result := checkLLMAPIKey(nil); result.Status != StatusFail {
		t.Errorf("expected FAIL for nil config, got %s", result.Status)
	}
}

func TestCheckLLMConnectivity_NilConfig(t *testing.T) {
	if result := checkLLMConnectivity(nil); result.Status != StatusFail {
		t.Errorf("expected FAIL for nil config, got %s", result.Status)
	}
}

func TestCheckLLMConnectivity_UnknownDefault(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = "missing"
	if result := checkLLMConnectivity(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL, got %s", result.Status)
	}
}

func TestCheckLLMConnectivity_NoAPIKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai", Type: "openai"}}
	if result := checkLLMConnectivity(cfg); result.Status != StatusWarn {
		t.Errorf("expected WARN for missing key, got %s", result.Status)
	}
}

func TestCheckLLMConnectivity_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s, want /v1/models", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai", APIKey: "sk", BaseURL: srv.URL + "/v1/"}}
	result := checkLLMConnectivity(cfg)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckLLMConnectivity_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai", APIKey: "sk", BaseURL: srv.URL}}
	if result := checkLLMConnectivity(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL, got %s", result.Status)
	}
}

func TestProviderEndpoint(t *testing.T) {
	tests := []struct {
		p    config.ProviderConfig
		want string
	}{
		{config.ProviderConfig{Name: "openai"}, "https://api.openai.com/v1/models"},
		{config.ProviderConfig{Name: "x", Type: "openrouter"}, "https://openrouter.ai/api/v1/models"},
		{config.ProviderConfig{Name: "groq"}, "https://api.groq.com/openai/v1/models"},
		{config.ProviderConfig{Name: "ollama"}, "http://localhost:11434/v1/models"},
		{config.ProviderConfig{Name: "custom", BaseURL: "http://llm.local/v1/"}, "http://llm.local/v1/models"},
	}
	for _, tt := range tests {
		if got := providerEndpoint(tt.p); got != tt.want {
			t.Errorf("providerEndpoint(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestCheckHistoryBackend_Memory(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.DataDir = filepath.Join(t.TempDir(), "sessions")
	result := checkHistoryBackend(cfg)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
	if _, err := os.Stat(cfg.History.DataDir); err != nil {
		t.Errorf("session dir not created: %v", err)
	}
}

func TestCheckHistoryBackend_InMemoryOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.DataDir = ""
	if result := checkHistoryBackend(cfg); result.Status != StatusPass {
		t.Errorf("expected PASS, got %s", result.Status)
	}
}

func TestCheckHistoryBackend_RedisUnreachable(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.Backend = "redis"
	cfg.History.RedisURL = "redis://127.0.0.1:1/0"
	if result := checkHistoryBackend(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL, got %s", result.Status)
	}
}

func TestCheckDocuments(t *testing.T) {
	cfg := config.Defaults()
	if result := checkDocuments(cfg); result.Status != StatusPass {
		t.Errorf("disabled: expected PASS, got %s", result.Status)
	}

	cfg.Documents.Enabled = true
	cfg.Documents.Path = filepath.Join(t.TempDir(), "docs", "documents.db")
	if result := checkDocuments(cfg); result.Status != StatusWarn {
		t.Errorf("no embedder: expected WARN, got %s", result.Status)
	}

	cfg.Embedding.Provider = "openai"
	if result := checkDocuments(cfg); result.Status != StatusPass {
		t.Errorf("configured: expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckWeather(t *testing.T) {
	cfg := config.Defaults()
	if result := checkWeather(cfg); result.Status != StatusWarn {
		t.Errorf("no key: expected WARN, got %s", result.Status)
	}

	cfg.Agents.Weather.APIKey = "owm"
	if result := checkWeather(cfg); result.Status != StatusPass {
		t.Errorf("key: expected PASS, got %s", result.Status)
	}

	cfg.Agents.Weather.APIKey = ""
	cfg.Agents.Enabled = []string{"general"}
	if result := checkWeather(cfg); result.Status != StatusPass {
		t.Errorf("disabled: expected PASS, got %s", result.Status)
	}
}

func TestCheckTimeZone(t *testing.T) {
	cfg := config.Defaults()
	cfg.Agents.TimeZone = "Europe/Madrid"
	if result := checkTimeZone(cfg); result.Status != StatusPass {
		t.Errorf("expected PASS, got %s", result.Status)
	}
	cfg.Agents.TimeZone = "Mars/Olympus"
	if result := checkTimeZone(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL, got %s", result.Status)
	}
}

func TestCheckSearXNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Agents.Search.SearXNGURL = srv.URL
	if result := checkSearXNG(cfg); result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}

	cfg.Agents.Search.SearXNGURL = ""
	if result := checkSearXNG(cfg); result.Status != StatusPass {
		t.Errorf("unset: expected PASS, got %s", result.Status)
	}

	if result := checkSearXNG(nil); result.Status != StatusWarn {
		t.Errorf("nil config: expected WARN, got %s", result.Status)
	}
}

func TestStatusIcon(t *testing.T) {
	if statusIcon(StatusPass) != "[PASS]" {
		t.Error("wrong icon for PASS")
	}
	if statusIcon(StatusWarn) != "[WARN]" {
		t.Error("wrong icon for WARN")
	}
	if statusIcon(StatusFail) != "[FAIL]" {
		t.Error("wrong icon for FAIL")
	}
	if statusIcon("other") != "[????]" {
		t.Error("wrong icon for unknown status")
	}
}

func TestSummarize(t *testing.T) {
	pass, warn, fail := summarize([]CheckResult{
		{Status: StatusPass}, {Status: StatusPass}, {Status: StatusWarn}, {Status: StatusFail},
	})
	if pass != 2 || warn != 1 || fail != 1 {
		t.Errorf("summarize = %d/%d/%d, want 2/1/1", pass, warn, fail)
	}
}

func TestRunDoctor_InvalidConfigFails(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "logger:\n  format: xml\n"); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runDoctor(cfgPath, &out)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if !strings.Contains(out.String(), "[FAIL] Config file") {
		t.Errorf("report missing config failure:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Results:") {
		t.Errorf("report missing summary:\n%s", out.String())
	}
}
