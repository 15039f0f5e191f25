// Package formatter sanitizes model output before it reaches users or is
// composed into a further prompt, and turns internal errors into user-safe
// replies.
package formatter

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"switchboard/internal/domain"
)

var finalAnswerRe = regexp.MustCompile(`(?i)final answer\s*:`)

// Applied in order.
var cleanupRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	// Leaked reasoning lines.
	{regexp.MustCompile(`(?im)^[ \t]*(thought|action input|action|observation)[ \t]*:.*$`), ""},
	// Tool scaffolding lines and inline tool names.
	{regexp.MustCompile(`(?m)^[ \t]*(TOOL|QUERY)[ \t]*:.*$`), ""},
	{regexp.MustCompile(`(?i)\s*\(?\bweb_search\b\)?`), ""},
	{regexp.MustCompile(`\b(TOOL|QUERY)\b:?`), ""},
	// Hedges that open a sentence.
	{regexp.MustCompile(`(?im)^[ \t]*(according to (the |my )?(search results|results|information found)|based on (our|the|my) (search )?results|seg[úu]n los resultados( de (la )?b[úu]squeda)?)[ \t]*,?[ \t]*`), ""},
	{regexp.MustCompile(`(?i)(^|[.!?]\s+)(according to (the |my )?search results|based on (our|the|my) (search )?results),\s*`), "$1"},
	// Whitespace left behind by the removals above.
	{regexp.MustCompile(`[ \t]{2,}`), " "},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// FormatAgentResponse strips chain-of-thought and tool leakage from output.
// Text after the last FINAL ANSWER: marker is all that is kept when the
// marker is present. With cleanupMetadata false only the marker extraction
// and trimming are applied.
func FormatAgentResponse(output string, confidence float64, cleanupMetadata bool) domain.AgentResult {
	text := output
	if locs := finalAnswerRe.FindAllStringIndex(text, -1); len(locs) > 0 {
		text = text[locs[len(locs)-1][1]:]
	}
	if cleanupMetadata {
		for _, r := range cleanupRules {
			text = r.re.ReplaceAllString(text, r.repl)
		}
	}
	return domain.AgentResult{Output: strings.TrimSpace(text), Confidence: confidence}
}

// FormatErrorResponse converts err into the uniform low-confidence apology
// shown to users and logs the underlying error. The reply follows the
// language recorded on ac and mentions its topic restriction, if any.
func FormatErrorResponse(logger *slog.Logger, err error, ac *domain.AgentContext, agentName string) domain.AgentResult {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	attrs := []any{"agent", agentName, "code", string(domain.ErrorCodeOf(err))}
	if ac != nil {
		attrs = append(attrs, "session_id", ac.SessionID)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.Error("agent request failed", attrs...)

	var topic, lang string
	if ac != nil {
		topic = strings.TrimSpace(ac.Topic)
		lang = ac.Value(domain.MetaLanguage)
	}
	return domain.AgentResult{Output: apology(lang, topic), Confidence: domain.ConfidenceError}
}

func apology(lang, topic string) string {
	if lang == "es" {
		if topic != "" {
			return "Lo siento, tuve un problema al procesar tu solicitud. Recuerda que solo puedo ayudarte con temas relacionados con " + topic + ". Por favor, inténtalo de nuevo."
		}
		return "Lo siento, tuve un problema al procesar tu solicitud. Por favor, inténtalo de nuevo."
	}
	if topic != "" {
		return "I'm sorry, I ran into a problem processing your request. Remember that I can only help with topics related to " + topic + ". Please try again."
	}
	return "I'm sorry, I ran into a problem processing your request. Please try again."
}

const maxHistoryEntryRunes = 500

// FormatHistory renders the last limit messages as "User: ..." /
// "Assistant: ..." lines for inclusion in a prompt. limit <= 0 renders all.
func FormatHistory(history []domain.Message, limit int) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if utf8.RuneCountInString(content) > maxHistoryEntryRunes {
			content = string([]rune(content)[:maxHistoryEntryRunes]) + "..."
		}
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("System: ")
		}
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
