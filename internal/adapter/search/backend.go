// Package search provides web search backends for the search agent.
package search

import "context"

// Backend abstracts a web search engine.
type Backend interface {
	// Search performs a web search and returns at most count results.
	Search(ctx context.Context, query string, count int) ([]Result, error)
	// Name returns the backend identifier (e.g. "searxng").
	Name() string
}

// Result represents a single search result.
type Result struct {
	Title   string
	URL     string
	Content string
}
