package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"switchboard/internal/adapter/search"
	"switchboard/internal/domain"
)

// Research answers factual questions by chaining subject_inference, search
// and summarizer through the registry.
type Research struct {
	logger *slog.Logger
}

var _ domain.Agent = (*Research)(nil)

// NewResearch creates the research agent.
func NewResearch(logger *slog.Logger) *Research {
	return &Research{logger: orDiscard(logger)}
}

func (a *Research) Name() string { return domain.AgentResearch }

func (a *Research) Description() string {
	return "Researches factual questions on the web and summarizes what it finds."
}

func (a *Research) Handle(ctx context.Context, input string, ac *domain.AgentContext, call domain.CallFunc) (domain.AgentResult, error) {
	if call == nil {
		return fail(a.logger, domain.NewDomainError("Research.Handle", domain.ErrAgentExecution, "no registry to delegate to"), ac, a.Name())
	}

	subjectRes, err := call(ctx, domain.AgentSubjectInference, input, ac)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	subject := strings.TrimSpace(subjectRes.Output)
	if subject == "" {
		subject = input
	}
	ac = ac.WithValue(domain.MetaResearchSubject, subject)

	searchRes, err := call(ctx, domain.AgentSearch, subject, ac)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	if searchRes.Confidence <= domain.ConfidenceNone {
		lang := language(ac, input)
		return domain.AgentResult{
			Output: localized(lang,
				fmt.Sprintf("I couldn't find anything about %q.", subject),
				fmt.Sprintf("No encontré información sobre %q.", subject)),
			Confidence: confidenceResearchEmpty,
			Extra:      map[string]string{domain.MetaResearchSubject: subject},
		}, nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nSources:\n%s", input, searchRes.Output)
	summary, err := call(ctx, domain.AgentSummarizer, prompt, ac)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}

	a.logger.Debug("research completed", "subject", subject, "confidence", summary.Confidence)
	return domain.AgentResult{
		Output:     summary.Output,
		Confidence: summary.Confidence,
		Extra:      map[string]string{domain.MetaResearchSubject: subject},
	}, nil
}

// SubjectInference extracts the search subject from a question.
type SubjectInference struct {
	logger *slog.Logger
}

var _ domain.Agent = (*SubjectInference)(nil)

// NewSubjectInference creates the subject_inference agent.
func NewSubjectInference(logger *slog.Logger) *SubjectInference {
	return &SubjectInference{logger: orDiscard(logger)}
}

func (a *SubjectInference) Name() string { return domain.AgentSubjectInference }

func (a *SubjectInference) Description() string {
	return "Extracts the subject a question should be searched for."
}

func (a *SubjectInference) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	prompt := "Extract the main subject to search the web for from the question below. " +
		"Reply with the search query only, no quotes or explanation.\n\nQuestion: " + input + "\nSearch query:"

	out, err := invokeModel(ctx, ac, "SubjectInference.Handle", prompt)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	subject := strings.Trim(firstLine(out), " \"'`")
	if subject == "" {
		subject = input
	}
	return domain.AgentResult{Output: subject, Confidence: confidenceSubject}, nil
}

// Search runs a web search and lists the results as numbered snippets.
type Search struct {
	backend    search.Backend
	maxResults int
	logger     *slog.Logger
}

var _ domain.Agent = (*Search)(nil)

// NewSearch creates the search agent. maxResults <= 0 uses 5.
func NewSearch(backend search.Backend, maxResults int, logger *slog.Logger) *Search {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Search{backend: backend, maxResults: maxResults, logger: orDiscard(logger)}
}

func (a *Search) Name() string { return domain.AgentSearch }

func (a *Search) Description() string {
	return "Searches the web and returns the top results."
}

func (a *Search) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return fail(a.logger, domain.NewDomainError("Search.Handle", domain.ErrInvalidInput, "empty query"), ac, a.Name())
	}

	results, err := a.backend.Search(ctx, query, a.maxResults)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	if len(results) > a.maxResults {
		results = results[:a.maxResults]
	}
	if len(results) == 0 {
		return domain.AgentResult{
			Output:     fmt.Sprintf("No search results found for %q.", query),
			Confidence: domain.ConfidenceNone,
		}, nil
	}
	return domain.AgentResult{Output: formatResults(results), Confidence: confidenceSearch}, nil
}

func formatResults(results []search.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summarizer condenses its input.
type Summarizer struct {
	logger *slog.Logger
}

var _ domain.Agent = (*Summarizer)(nil)

// NewSummarizer creates the summarizer agent.
func NewSummarizer(logger *slog.Logger) *Summarizer {
	return &Summarizer{logger: orDiscard(logger)}
}

func (a *Summarizer) Name() string { return domain.AgentSummarizer }

func (a *Summarizer) Description() string {
	return "Summarizes text or combines several answers into one."
}

func (a *Summarizer) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	prompt := preamble("You write accurate, well-organized summaries. Keep facts, names and numbers; drop repetition.", ac, input) +
		"\nSummarize the following:\n\n" + input + "\n\nSummary:"

	out, err := invokeModel(ctx, ac, "Summarizer.Handle", prompt)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}

	confidence := confidenceSummary
	if len([]rune(input)) > longSummaryInput {
		confidence = confidenceLongSummary
	}
	return domain.AgentResult{Output: strings.TrimSpace(out), Confidence: confidence}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
