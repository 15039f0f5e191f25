package domain

import "context"

// Well-known agent names. The set is open: any agent may register under a
// new name at startup and callers treat names as opaque keys.
const (
	AgentGeneral          = "general"
	AgentResearch         = "research"
	AgentWeather          = "weather"
	AgentOpenWeatherMap   = "open_weather_map"
	AgentTime             = "time"
	AgentCurrentTime      = "current_time"
	AgentDocumentSearch   = "document_search"
	AgentSummarizer       = "summarizer"
	AgentCodeInterpreter  = "code_interpreter"
	AgentRouting          = "routing"
	AgentSubjectInference = "subject_inference"
	AgentSearch           = "search"
	AgentWebSearch        = "web_search"

	// AgentFallback is the synthetic name reported when routing could not
	// produce an answer from any registered agent.
	AgentFallback = "fallback"
)

// Confidence conventions shared by agents and the orchestrator.
const (
	ConfidenceNone  = 0.0
	ConfidenceError = 0.1
	ConfidenceHigh  = 0.85
)

// AgentResult is the output of any agent invocation.
type AgentResult struct {
	Output     string            `json:"output"`
	Confidence float64           `json:"confidence"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// CallFunc lets an agent invoke another registered agent by name. The
// registry binds it to itself so nested calls are enriched and depth-limited.
type CallFunc func(ctx context.Context, name, input string, ac *AgentContext) (AgentResult, error)

// Agent is a registered unit of capability.
type Agent interface {
	// Name is the registry key.
	Name() string
	// Description is shown to the routing model and in agent listings.
	Description() string
	// Handle answers input. call may be nil when the agent is invoked
	// outside a registry.
	Handle(ctx context.Context, input string, ac *AgentContext, call CallFunc) (AgentResult, error)
}

// AgentInfo is a read-only snapshot of a registered agent.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandlerFunc is the function shape of Agent.Handle.
type HandlerFunc func(ctx context.Context, input string, ac *AgentContext, call CallFunc) (AgentResult, error)

// funcAgent adapts a HandlerFunc to the Agent interface.
type funcAgent struct {
	name        string
	description string
	handle      HandlerFunc
}

// NewAgentFunc wraps fn as an Agent registered under name.
func NewAgentFunc(name, description string, fn HandlerFunc) Agent {
	return &funcAgent{name: name, description: description, handle: fn}
}

func (a *funcAgent) Name() string        { return a.name }
func (a *funcAgent) Description() string { return a.description }

func (a *funcAgent) Handle(ctx context.Context, input string, ac *AgentContext, call CallFunc) (AgentResult, error) {
	return a.handle(ctx, input, ac, call)
}
