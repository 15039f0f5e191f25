package agent

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"switchboard/internal/adapter/search"
	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
)

// Registrar is the subset of the multiagent registry Register needs.
type Registrar interface {
	Register(agent domain.Agent) error
}

// Deps are the collaborators the built-in agents draw on. A nil Search
// backend leaves search and research unregistered; a nil Documents store or
// Embedder leaves document_search unregistered.
type Deps struct {
	Search    search.Backend
	Documents domain.DocumentStore
	Embedder  domain.EmbeddingProvider
	Logger    *slog.Logger
}

// Builtins constructs every built-in agent whose collaborators are present.
func Builtins(cfg *config.Config, deps Deps) []domain.Agent {
	logger := orDiscard(deps.Logger)

	agents := []domain.Agent{
		NewGeneral(logger, cfg.Routing.HistoryLimit),
		NewSubjectInference(logger),
		NewSummarizer(logger),
		NewCodeInterpreter(logger),
	}
	agents = append(agents, NewWeatherAgents(cfg.Agents.Weather, logger)...)
	agents = append(agents, NewClockAgents(cfg.Agents.TimeZone, logger)...)

	if deps.Search != nil {
		agents = append(agents,
			NewSearch(deps.Search, cfg.Agents.Search.MaxResults, logger),
			NewResearch(logger),
		)
	}
	if deps.Documents != nil && deps.Embedder != nil {
		agents = append(agents,
			NewDocumentSearch(deps.Documents, deps.Embedder, cfg.Documents.TopK, cfg.Documents.UserID, logger))
	}
	return agents
}

// NewSearchBackend builds the SearXNG backend from cfg, or nil when no
// instance is configured.
func NewSearchBackend(cfg config.SearchConfig, logger *slog.Logger) search.Backend {
	if cfg.SearXNGURL == "" {
		return nil
	}
	return search.NewCached(
		search.NewSearXNG(cfg.SearXNGURL, logger, search.WithTimeout(cfg.Timeout)),
		5*time.Minute,
	)
}

// Register adds agents to r, keeping only names in enabled when it is
// non-empty. It returns the registered names in order.
func Register(r Registrar, agents []domain.Agent, enabled []string) ([]string, error) {
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		if len(enabled) > 0 && !slices.Contains(enabled, a.Name()) {
			continue
		}
		if err := r.Register(a); err != nil {
			return names, fmt.Errorf("register agent %s: %w", a.Name(), err)
		}
		names = append(names, a.Name())
	}
	return names, nil
}
