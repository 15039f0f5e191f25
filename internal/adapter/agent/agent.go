// Package agent holds the built-in agents registered with the multiagent
// registry. Each agent answers from its own collaborator (language model,
// search backend, weather API, document store) and reports failures as the
// standard low-confidence apology rather than an error.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"switchboard/internal/domain"
	"switchboard/internal/usecase/classify"
	"switchboard/internal/usecase/formatter"
)

// Confidences reported by the built-in agents.
const (
	confidenceGeneral       = 0.8
	confidenceGreeting      = 0.9
	confidenceSubject       = 0.8
	confidenceSearch        = 0.7
	confidenceSummary       = 0.75
	confidenceLongSummary   = 0.85
	confidenceResearchEmpty = 0.3
	confidenceWeather       = 0.9
	confidenceNeedsCity     = 0.3
	confidenceTime          = 0.9
	confidenceDocuments     = 0.8
	confidenceNoDocuments   = 0.2
	confidenceCode          = 0.75

	longSummaryInput = 200
)

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

// invokeModel sends prompt to the context's language model.
func invokeModel(ctx context.Context, ac *domain.AgentContext, op, prompt string) (string, error) {
	if ac == nil || ac.Model == nil {
		return "", domain.NewDomainError(op, domain.ErrProviderError, "no language model on context")
	}
	out, err := ac.Model.Invoke(ctx, prompt)
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	return out, nil
}

// language returns the context's recorded language, detecting it from input
// when the router did not.
func language(ac *domain.AgentContext, input string) string {
	if lang := ac.Value(domain.MetaLanguage); lang != "" {
		return lang
	}
	return classify.DetectLanguage(input)
}

// preamble is the shared system section of every LLM-backed agent prompt.
func preamble(role string, ac *domain.AgentContext, input string) string {
	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n")
	if ac != nil {
		if topic := strings.TrimSpace(ac.Topic); topic != "" {
			fmt.Fprintf(&b, "Only help with topics related to %s. Politely decline anything else.\n", topic)
		}
	}
	if language(ac, input) == classify.LangSpanish {
		b.WriteString("Respond in Spanish.\n")
	} else {
		b.WriteString("Respond in English.\n")
	}
	return b.String()
}

// fail logs err and returns the uniform apology result.
func fail(logger *slog.Logger, err error, ac *domain.AgentContext, name string) (domain.AgentResult, error) {
	return formatter.FormatErrorResponse(logger, err, ac, name), nil
}

// localized picks between English and Spanish text.
func localized(lang, en, es string) string {
	if lang == classify.LangSpanish {
		return es
	}
	return en
}
