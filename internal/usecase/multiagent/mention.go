package multiagent

import (
	"log/slog"
	"slices"
	"strings"
)

// PrefixRouter recognizes an explicit "@agent" prefix on a query.
type PrefixRouter struct {
	registry *Registry
	logger   *slog.Logger
}

// NewPrefixRouter creates a router that resolves @agent-name prefixes
// against registry.
func NewPrefixRouter(registry *Registry, logger *slog.Logger) *PrefixRouter {
	if logger == nil {
		logger = discardLogger()
	}
	return &PrefixRouter{registry: registry, logger: logger}
}

// Route returns the mentioned agent and the query with the prefix removed.
// ok is false when there is no prefix, nothing follows it, the name is not
// registered, or it is not among candidates (an empty candidate list allows
// any registered agent).
func (r *PrefixRouter) Route(query string, candidates []string) (agent, rest string, ok bool) {
	content := strings.TrimSpace(query)
	if !strings.HasPrefix(content, "@") {
		return "", query, false
	}

	// Extract the name after @, up to the first whitespace.
	name, rest, _ := strings.Cut(content[1:], " ")
	name = strings.ToLower(strings.TrimRight(name, ":,"))
	rest = strings.TrimSpace(rest)

	if name == "" || !r.registry.Has(name) {
		r.logger.Debug("unknown prefix, routing normally", "prefix", name)
		return "", query, false
	}
	if len(candidates) > 0 && !slices.Contains(candidates, name) {
		r.logger.Debug("prefix names a non-candidate agent", "prefix", name)
		return "", query, false
	}
	if rest == "" {
		r.logger.Debug("prefix without a message, routing normally", "prefix", name)
		return "", query, false
	}
	r.logger.Debug("prefix matched agent", "agent", name)
	return name, rest, true
}
