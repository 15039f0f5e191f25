package llm

import (
	"context"
	"fmt"
	"strings"

	"switchboard/internal/domain"
)

// Model adapts an LLMProvider to the prompt-in, text-out domain.LanguageModel
// the router and agents use.
type Model struct {
	provider    domain.LLMProvider
	model       string
	system      string
	maxTokens   int
	temperature float64
}

var _ domain.LanguageModel = (*Model)(nil)

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithModelName overrides the provider's default model.
func WithModelName(name string) ModelOption {
	return func(m *Model) { m.model = name }
}

// WithSystemPrompt prepends a system message to every prompt.
func WithSystemPrompt(s string) ModelOption {
	return func(m *Model) { m.system = s }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ModelOption {
	return func(m *Model) { m.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ModelOption {
	return func(m *Model) { m.temperature = t }
}

// NewModel wraps provider.
func NewModel(provider domain.LLMProvider, opts ...ModelOption) *Model {
	m := &Model{provider: provider}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invoke sends prompt as a single user message and returns the reply text.
func (m *Model) Invoke(ctx context.Context, prompt string) (string, error) {
	msgs := make([]domain.Message, 0, 2)
	if m.system != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: m.system})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: prompt})

	resp, err := m.provider.Chat(ctx, domain.ChatRequest{
		Model:       m.model,
		Messages:    msgs,
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		return "", domain.WrapOp("Model.Invoke", err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", fmt.Errorf("Model.Invoke: %w: empty completion", domain.ErrProviderError)
	}
	return text, nil
}
