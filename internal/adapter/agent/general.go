package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"switchboard/internal/domain"
	"switchboard/internal/usecase/classify"
	"switchboard/internal/usecase/formatter"
)

const defaultHistoryTurns = 10

// General is the conversational fallback agent.
type General struct {
	logger       *slog.Logger
	historyTurns int
}

var _ domain.Agent = (*General)(nil)

// NewGeneral creates the general agent. historyTurns <= 0 uses 10.
func NewGeneral(logger *slog.Logger, historyTurns int) *General {
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &General{logger: orDiscard(logger), historyTurns: historyTurns}
}

func (a *General) Name() string { return domain.AgentGeneral }

func (a *General) Description() string {
	return "General conversation, greetings, explanations and questions no specialist covers."
}

func (a *General) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	var b strings.Builder
	b.WriteString(preamble("You are a helpful, concise assistant.", ac, input))
	if ac != nil {
		if history := formatter.FormatHistory(ac.History, a.historyTurns); history != "" {
			fmt.Fprintf(&b, "\nConversation so far:\n%s\n", history)
		}
	}
	fmt.Fprintf(&b, "\nUser: %s\nAssistant:", input)

	out, err := invokeModel(ctx, ac, "General.Handle", b.String())
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}

	confidence := confidenceGeneral
	if classify.IsSimpleGreeting(input) {
		confidence = confidenceGreeting
	}
	return domain.AgentResult{Output: strings.TrimSpace(out), Confidence: confidence}, nil
}
