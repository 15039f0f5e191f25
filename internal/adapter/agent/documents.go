package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"switchboard/internal/domain"
)

const defaultDocumentTopK = 4

// DocumentSearch answers from the user's uploaded documents.
type DocumentSearch struct {
	store       domain.DocumentStore
	embedder    domain.EmbeddingProvider
	topK        int
	defaultUser string
	logger      *slog.Logger
}

var _ domain.Agent = (*DocumentSearch)(nil)

// NewDocumentSearch creates the document_search agent. Requests whose
// context carries no user ID search defaultUser's documents.
func NewDocumentSearch(store domain.DocumentStore, embedder domain.EmbeddingProvider, topK int, defaultUser string, logger *slog.Logger) *DocumentSearch {
	if topK <= 0 {
		topK = defaultDocumentTopK
	}
	return &DocumentSearch{
		store:       store,
		embedder:    embedder,
		topK:        topK,
		defaultUser: defaultUser,
		logger:      orDiscard(logger),
	}
}

func (a *DocumentSearch) Name() string { return domain.AgentDocumentSearch }

func (a *DocumentSearch) Description() string {
	return "Answers questions from the documents the user has uploaded."
}

func (a *DocumentSearch) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	userID := a.defaultUser
	if ac != nil && ac.UserID != "" {
		userID = ac.UserID
	}

	vecs, err := a.embedder.Embed(ctx, []string{input})
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	if len(vecs) == 0 {
		return fail(a.logger, domain.NewDomainError("DocumentSearch.Handle", domain.ErrEmbeddingFailed, "no vector returned"), ac, a.Name())
	}

	hits, err := a.store.SimilaritySearch(ctx, userID, vecs[0], a.topK)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	lang := language(ac, input)
	if len(hits) == 0 {
		return domain.AgentResult{
			Output: localized(lang,
				"I could not find information in your documents about that.",
				"No pude encontrar información sobre eso en tus documentos."),
			Confidence: confidenceNoDocuments,
		}, nil
	}

	var b strings.Builder
	b.WriteString(preamble("Answer the question using only the document excerpts below. "+
		"If they do not contain the answer, say so.", ac, input))
	b.WriteString("\nExcerpts:\n")
	sources := make([]string, 0, len(hits))
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, h.Source, strings.TrimSpace(h.Content))
		if h.Source != "" && !slices.Contains(sources, h.Source) {
			sources = append(sources, h.Source)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", input)

	out, err := invokeModel(ctx, ac, "DocumentSearch.Handle", b.String())
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}

	a.logger.Debug("document search answered", "user_id", userID, "hits", len(hits), "top_score", hits[0].Score)
	return domain.AgentResult{
		Output:     strings.TrimSpace(out),
		Confidence: confidenceDocuments,
		Extra:      map[string]string{"sources": strings.Join(sources, ",")},
	}, nil
}

// CodeInterpreter explains, reviews and writes code.
type CodeInterpreter struct {
	logger *slog.Logger
}

var _ domain.Agent = (*CodeInterpreter)(nil)

// NewCodeInterpreter creates the code_interpreter agent.
func NewCodeInterpreter(logger *slog.Logger) *CodeInterpreter {
	return &CodeInterpreter{logger: orDiscard(logger)}
}

func (a *CodeInterpreter) Name() string { return domain.AgentCodeInterpreter }

func (a *CodeInterpreter) Description() string {
	return "Explains, reviews, debugs and writes code."
}

func (a *CodeInterpreter) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	prompt := preamble("You are an expert programmer. Explain code precisely, point out bugs, "+
		"and put any code you write in fenced code blocks with the language named.", ac, input) +
		"\nRequest:\n" + input + "\n\nResponse:"

	out, err := invokeModel(ctx, ac, "CodeInterpreter.Handle", prompt)
	if err != nil {
		return fail(a.logger, err, ac, a.Name())
	}
	return domain.AgentResult{Output: strings.TrimSpace(out), Confidence: confidenceCode}, nil
}
