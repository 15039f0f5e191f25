package multiagent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

// DefaultMaxDepth bounds nested agent-to-agent calls.
const DefaultMaxDepth = 5

// discardLogger returns a no-op logger for components created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Registry maps agent names to implementations and forwards chained calls.
// It is populated at startup; lookups are safe from concurrent routing calls.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]domain.Agent
	maxDepth int
	bus      domain.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxDepth sets the delegation depth ceiling.
func WithMaxDepth(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithEventBus publishes delegation and error events to bus.
func WithEventBus(bus domain.EventBus) RegistryOption {
	return func(r *Registry) { r.bus = bus }
}

// WithClock overrides the clock used for the enrichment timestamp.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	r := &Registry{
		agents:   make(map[string]domain.Agent),
		maxDepth: DefaultMaxDepth,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register inserts agent under its name, replacing any earlier handler with
// the same name.
func (r *Registry) Register(agent domain.Agent) error {
	if agent == nil || strings.TrimSpace(agent.Name()) == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if _, exists := r.agents[name]; exists {
		r.logger.Warn("agent replaced", "agent", name)
	} else {
		r.logger.Info("agent registered", "agent", name)
	}
	r.agents[name] = agent
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns every registered agent sorted by name.
func (r *Registry) All() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return names
}

// List returns a snapshot of every registered agent, sorted by name.
func (r *Registry) List() []domain.AgentInfo {
	all := r.All()
	infos := make([]domain.AgentInfo, len(all))
	for i, a := range all {
		infos[i] = domain.AgentInfo{Name: a.Name(), Description: a.Description()}
	}
	return infos
}

// Call resolves name and invokes it with an enriched copy of ac. The agent
// receives Call itself as its CallFunc so it can delegate further; the chain
// fails with ErrMaxDelegationDepth once it is maxDepth calls deep.
func (r *Registry) Call(ctx context.Context, name, input string, ac *domain.AgentContext) (domain.AgentResult, error) {
	agent, ok := r.Get(name)
	if !ok {
		return domain.AgentResult{}, &domain.AgentNotFoundError{Name: name, Known: r.Names()}
	}

	if ac == nil {
		ac = domain.NewAgentContext(domain.SessionIDFromContext(ctx), input, nil)
	}
	if ac.Depth >= r.maxDepth {
		chain := strings.Join(append(append([]string(nil), ac.Chain...), name), " > ")
		err := domain.NewDomainError("Registry.Call", domain.ErrMaxDelegationDepth, chain)
		r.logger.Warn("delegation depth exceeded", "agent", name, "depth", ac.Depth, "chain", chain)
		r.publishError(ctx, ac.SessionID, name, err)
		return domain.AgentResult{}, err
	}

	enriched := ac.Derive(name, input, r.now())

	ctx, span := tracer.StartSpan(ctx, "registry.call")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("agent.name", name),
		tracer.IntAttr("agent.depth", enriched.Depth),
	)

	if ac.AgentName != "" {
		r.publish(ctx, enriched.SessionID, domain.EventAgentDelegated, domain.AgentDelegatedPayload{
			From:  ac.AgentName,
			To:    name,
			Depth: enriched.Depth,
		})
		r.logger.Debug("delegating", "from", ac.AgentName, "to", name, "depth", enriched.Depth)
	}

	res, err := agent.Handle(ctx, input, enriched, r.Call)
	if err != nil {
		tracer.RecordError(span, err)
		r.publishError(ctx, enriched.SessionID, name, err)
		return res, fmt.Errorf("agent %q: %w: %w", name, domain.ErrAgentExecution, err)
	}
	tracer.SetOK(span)
	return res, nil
}

func (r *Registry) publishError(ctx context.Context, sessionID, name string, err error) {
	r.publish(ctx, sessionID, domain.EventAgentError, domain.AgentErrorPayload{
		Agent: name,
		Error: err.Error(),
		Code:  string(domain.ErrorCodeOf(err)),
	})
}

func (r *Registry) publish(ctx context.Context, sessionID string, typ domain.EventType, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.NewEvent(typ, sessionID, payload))
}
