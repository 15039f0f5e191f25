package domain

import (
	"context"
	"maps"
	"time"
)

type ctxKey string

const (
	sessionCtxKey ctxKey = "session_id"
	requestCtxKey ctxKey = "request_id"
)

// ContextWithSessionID returns a new context carrying the session ID.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRequestID returns a new context carrying a per-route request ID (ULID).
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey).(string); ok {
		return v
	}
	return ""
}

// Well-known metadata keys.
const (
	MetaLanguage        = "language"
	MetaResearchSubject = "research_subject"
	MetaRoutePath       = "route_path"
)

// AgentContext is the request-scoped data passed through every call in a
// routing chain.
//
// An AgentContext is never mutated after it has been handed to an agent.
// Every With*/Derive method returns a new value whose maps and slices are
// copies, so a sibling call in the same chain cannot observe another call's
// additions.
type AgentContext struct {
	SessionID string
	UserID    string
	Input     string
	History   []Message // most-recent-last
	Model     LanguageModel

	// Topic restricts the assistant to a subject; empty means unrestricted.
	Topic string
	// AvailableAgents is the candidate set the router may choose among.
	AvailableAgents []string

	// Enrichment written by the registry on every chained call.
	AgentName   string
	InputLength int
	Timestamp   time.Time
	Depth       int
	Chain       []string

	metadata map[string]string
	caps     map[any]any
}

// NewAgentContext builds a root context for one routing decision.
func NewAgentContext(sessionID, input string, history []Message) *AgentContext {
	return &AgentContext{
		SessionID: sessionID,
		Input:     input,
		History:   history,
		Timestamp: time.Now(),
	}
}

// Clone returns a shallow copy with its own maps and slices.
func (ac *AgentContext) Clone() *AgentContext {
	if ac == nil {
		return &AgentContext{}
	}
	cp := *ac
	cp.History = append([]Message(nil), ac.History...)
	cp.AvailableAgents = append([]string(nil), ac.AvailableAgents...)
	cp.Chain = append([]string(nil), ac.Chain...)
	cp.metadata = maps.Clone(ac.metadata)
	cp.caps = maps.Clone(ac.caps)
	return &cp
}

// Derive returns the overlay the registry hands to a chained call: all
// fields preserved plus agent name, input length, timestamp and depth.
func (ac *AgentContext) Derive(agentName, input string, now time.Time) *AgentContext {
	cp := ac.Clone()
	cp.AgentName = agentName
	cp.InputLength = len([]rune(input))
	cp.Timestamp = now
	cp.Depth = ac.depth() + 1
	cp.Chain = append(cp.Chain, agentName)
	if cp.Input == "" {
		cp.Input = input
	}
	return cp
}

func (ac *AgentContext) depth() int {
	if ac == nil {
		return 0
	}
	return ac.Depth
}

// WithValue returns a copy carrying key=value in its metadata.
func (ac *AgentContext) WithValue(key, value string) *AgentContext {
	cp := ac.Clone()
	if cp.metadata == nil {
		cp.metadata = make(map[string]string, 1)
	}
	cp.metadata[key] = value
	return cp
}

// Value reads a metadata entry.
func (ac *AgentContext) Value(key string) string {
	if ac == nil {
		return ""
	}
	return ac.metadata[key]
}

// Metadata returns a copy of all metadata entries.
func (ac *AgentContext) Metadata() map[string]string {
	if ac == nil {
		return nil
	}
	return maps.Clone(ac.metadata)
}

// LastMessage returns the most recent history entry, if any.
func (ac *AgentContext) LastMessage() (Message, bool) {
	if ac == nil || len(ac.History) == 0 {
		return Message{}, false
	}
	return ac.History[len(ac.History)-1], true
}

// capKey is the side-table key for capability type T.
type capKey[T any] struct{}

// WithCapability returns a copy of ac carrying v as its T capability.
// Optional collaborators (search backends, embedders, API credentials) are
// attached this way so each agent asks for exactly the type it needs.
func WithCapability[T any](ac *AgentContext, v T) *AgentContext {
	cp := ac.Clone()
	if cp.caps == nil {
		cp.caps = make(map[any]any, 1)
	}
	cp.caps[capKey[T]{}] = v
	return cp
}

// CapabilityOf looks up the T capability attached to ac.
func CapabilityOf[T any](ac *AgentContext) (T, bool) {
	var zero T
	if ac == nil || ac.caps == nil {
		return zero, false
	}
	v, ok := ac.caps[capKey[T]{}].(T)
	if !ok {
		return zero, false
	}
	return v, true
}
