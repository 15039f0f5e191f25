package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestSearXNGName(t *testing.T) {
	assert.Equal(t, "searxng", NewSearXNG("http://localhost:8080", nil).Name())
}

func TestSearXNGTrailingSlashTrimmed(t *testing.T) {
	b := NewSearXNG("http://localhost:8080/", nil)
	assert.Equal(t, "http://localhost:8080", b.instanceURL)
}

func TestSearXNGSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "golang testing", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "es", r.URL.Query().Get("language"))
		fmt.Fprint(w, `{"results":[
			{"title":" Go Testing ","url":"https://go.dev/testing","content":"Testing in Go"},
			{"title":"Second","url":"https://example.com/2","content":"more"},
			{"title":"Third","url":"https://example.com/3","content":"even more"}
		]}`)
	}))
	defer srv.Close()

	b := NewSearXNG(srv.URL, nil, WithLanguage("es"))
	results, err := b.Search(context.Background(), "golang testing", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Title: "Go Testing", URL: "https://go.dev/testing", Content: "Testing in Go"}, results[0])
	assert.Equal(t, "Second", results[1].Title)
}

func TestSearXNGZeroCountReturnsAll(t *testing.T) {
	b := NewSearXNG("http://searx.local", nil, WithHTTPClient(&http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"results":[{"title":"a"},{"title":"b"}]}`), nil
		}),
	}))
	results, err := b.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearXNGFailures(t *testing.T) {
	tests := []struct {
		name string
		rt   roundTripFunc
		want string
	}{
		{
			name: "transport error",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, fmt.Errorf("connection refused")
			},
			want: "connection refused",
		},
		{
			name: "non-200",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusServiceUnavailable, "maintenance"), nil
			},
			want: "HTTP 503",
		},
		{
			name: "bad json",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(200, "<html>"), nil
			},
			want: "parse response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSearXNG("http://searx.local", nil, WithHTTPClient(&http.Client{Transport: tt.rt}))
			_, err := b.Search(context.Background(), "q", 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, domain.ErrProviderError))
		})
	}
}

func TestSearXNGTimeoutOption(t *testing.T) {
	b := NewSearXNG("http://searx.local", nil, WithTimeout(0))
	assert.Equal(t, defaultTimeout, b.client.Timeout)

	b = NewSearXNG("http://searx.local", nil, WithTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, b.client.Timeout)
}
