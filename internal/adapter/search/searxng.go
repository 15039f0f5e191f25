package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

const (
	maxSearchBodySize = 512 * 1024 // 512KB
	defaultTimeout    = 15 * time.Second
)

// searxngResponse models the relevant portion of the SearXNG JSON response.
type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Engine  string `json:"engine"`
	} `json:"results"`
	NumberOfResults int `json:"number_of_results"`
}

// SearXNG searches the web via a SearXNG instance.
type SearXNG struct {
	client      *http.Client
	instanceURL string
	language    string
	logger      *slog.Logger
}

var _ Backend = (*SearXNG)(nil)

// SearXNGOption configures a SearXNG backend.
type SearXNGOption func(*SearXNG)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) SearXNGOption {
	return func(b *SearXNG) { b.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) SearXNGOption {
	return func(b *SearXNG) {
		if d > 0 {
			b.client.Timeout = d
		}
	}
}

// WithLanguage restricts results to a language code such as "en" or "es".
func WithLanguage(lang string) SearXNGOption {
	return func(b *SearXNG) { b.language = lang }
}

// NewSearXNG creates a search backend backed by a SearXNG instance.
func NewSearXNG(instanceURL string, logger *slog.Logger, opts ...SearXNGOption) *SearXNG {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &SearXNG{
		client:      &http.Client{Timeout: defaultTimeout},
		instanceURL: strings.TrimRight(instanceURL, "/"),
		logger:      logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements Backend.
func (b *SearXNG) Name() string { return "searxng" }

// Search implements Backend.
func (b *SearXNG) Search(ctx context.Context, query string, count int) ([]Result, error) {
	ctx, span := tracer.StartSpan(ctx, "search.searxng",
		trace.WithAttributes(tracer.StringAttr("search.query", query)),
	)
	defer span.End()

	results, err := b.search(ctx, query, count)
	if err != nil {
		err = domain.NewSubSystemError("search", "SearXNG.Search", domain.ErrProviderError, err.Error())
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("search.results", len(results)))
	tracer.SetOK(span)
	return results, nil
}

func (b *SearXNG) search(ctx context.Context, query string, count int) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.instanceURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	if b.language != "" {
		q.Set("language", b.language)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (HTTP %d): %s", resp.StatusCode, truncate(string(body), 256))
	}

	var searxResp searxngResponse
	if err := json.Unmarshal(body, &searxResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]Result, 0, min(count, len(searxResp.Results)))
	for _, r := range searxResp.Results {
		if count > 0 && len(results) >= count {
			break
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Content: strings.TrimSpace(r.Content),
		})
	}

	b.logger.Debug("searxng search completed", "query", query, "results", len(results))
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
