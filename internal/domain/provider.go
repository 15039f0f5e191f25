package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "groq").
	Name() string
}

// LanguageModel is the narrow text-completion view the routing core and
// agents depend on: a fully formed prompt in, text out.
type LanguageModel interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// LanguageModelFunc adapts a function to LanguageModel.
type LanguageModelFunc func(ctx context.Context, prompt string) (string, error)

// Invoke calls f.
func (f LanguageModelFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
