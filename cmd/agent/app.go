package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"switchboard/internal/adapter/agent"
	"switchboard/internal/adapter/embedding"
	"switchboard/internal/adapter/history"
	"switchboard/internal/adapter/llm"
	"switchboard/internal/adapter/memory/vector"
	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/logger"
	"switchboard/internal/usecase"
	"switchboard/internal/usecase/eventbus"
	"switchboard/internal/usecase/multiagent"
	"switchboard/internal/usecase/scheduling"
)

// app holds the wired components shared by every command.
type app struct {
	cfg *config.Config
	log *slog.Logger

	model        domain.LanguageModel
	bus          *eventbus.Bus
	registry     *multiagent.Registry
	orchestrator *multiagent.Orchestrator
	chat         *usecase.ChatService
	history      domain.HistoryStore
	documents    *vector.Store
	embedder     domain.EmbeddingProvider
	scheduler    *scheduling.Scheduler
	agents       []string

	closers []func() error
}

// buildApp wires configuration into a running object graph. Nothing is
// started; callers start the scheduler and channels they need.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	// 1. LLM providers
	_, provider, err := llm.BuildFromConfig(cfg.LLM, logger.Component(log, "llm"))
	if err != nil {
		return a, fmt.Errorf("llm: %w", err)
	}
	a.model = llm.NewModel(provider)

	// 2. Event bus
	a.bus = eventbus.New(log)
	unsubscribe := eventbus.LogRouting(a.bus, logger.Component(log, "routing"))
	a.closers = append(a.closers, func() error {
		unsubscribe()
		a.bus.Close()
		return nil
	})

	// 3. Embeddings and documents
	a.embedder, err = embedding.New(cfg.Embedding)
	if err != nil {
		return a, fmt.Errorf("embedding: %w", err)
	}
	if cfg.Documents.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Documents.Path), 0o700); err != nil {
			return a, fmt.Errorf("documents dir: %w", err)
		}
		a.documents, err = vector.New(cfg.Documents.Path, logger.Component(log, "documents"))
		if err != nil {
			return a, fmt.Errorf("documents: %w", err)
		}
		a.closers = append(a.closers, a.documents.Close)
	}

	// 4. History
	var reaper domain.SessionReaper
	switch cfg.History.Backend {
	case "redis":
		client, err := history.Dial(ctx, cfg.History.RedisURL)
		if err != nil {
			return a, fmt.Errorf("history: %w", err)
		}
		store := history.NewRedisStore(client, logger.Component(log, "history"),
			history.WithMaxMessages(cfg.History.MaxMessages),
			history.WithTTL(cfg.History.SessionTTL),
		)
		a.closers = append(a.closers, store.Close)
		a.history, reaper = store, store
	default:
		sm := usecase.NewSessionManager(cfg.History.DataDir, cfg.History.MaxMessages)
		a.history, reaper = sm, sm
	}

	// 5. Agents
	a.registry = multiagent.NewRegistry(logger.Component(log, "registry"),
		multiagent.WithMaxDepth(cfg.Routing.MaxDelegationDepth),
		multiagent.WithEventBus(a.bus),
	)
	deps := agent.Deps{
		Search:   agent.NewSearchBackend(cfg.Agents.Search, logger.Component(log, "search")),
		Embedder: a.embedder,
		Logger:   logger.Component(log, "agent"),
	}
	if a.documents != nil {
		deps.Documents = a.documents
	}
	a.agents, err = agent.Register(a.registry, agent.Builtins(cfg, deps), cfg.Agents.Enabled)
	if err != nil {
		return a, fmt.Errorf("agents: %w", err)
	}
	if len(a.agents) == 0 {
		return a, errors.New("agents: no agents enabled")
	}

	// 6. Routing and chat
	a.orchestrator = multiagent.NewOrchestrator(a.registry, logger.Component(log, "orchestrator"),
		multiagent.WithModel(a.model),
		multiagent.WithOptions(routingOptions(cfg.Routing)),
	)
	a.chat = usecase.NewChatService(a.orchestrator, a.history,
		usecase.ChatConfig{HistoryLimit: cfg.Routing.HistoryLimit, Topic: cfg.Agents.Topic},
		logger.Component(log, "chat"),
		usecase.WithEventBus(a.bus),
		usecase.WithLanguageModel(a.model),
		usecase.WithEnrichers(defaultUser(cfg.Documents.UserID)),
	)

	// 7. Scheduler
	if cfg.History.SessionTTL > 0 && cfg.History.ReapSchedule != "" {
		a.scheduler = scheduling.NewScheduler(logger.Component(log, "scheduler"))
		if err := a.scheduler.AddTask(scheduling.SessionReapTask(reaper, cfg.History.SessionTTL, cfg.History.ReapSchedule, log)); err != nil {
			return a, fmt.Errorf("scheduler: %w", err)
		}
	}

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Stop())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func routingOptions(rc config.RoutingConfig) multiagent.Options {
	return multiagent.Options{
		HighConfidence:         rc.HighConfidence,
		MediumConfidence:       rc.MediumConfidence,
		CompletenessWeight:     rc.CompletenessWeight,
		SummarizerMargin:       rc.SummarizerMargin,
		MinOutputLength:        rc.MinOutputLength,
		DocumentProbeMinLength: rc.DocumentProbeMinLength,
		AgentTimeout:           rc.AgentTimeout,
		MaxParallel:            rc.MaxParallel,
	}
}

// defaultUser attributes anonymous turns to the configured document owner so
// single-user deployments can search what they ingested.
func defaultUser(userID string) usecase.ContextEnricher {
	return func(ac *domain.AgentContext) *domain.AgentContext {
		if ac.UserID == "" && userID != "" {
			ac.UserID = userID
		}
		return ac
	}
}
