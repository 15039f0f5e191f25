package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/adapter/search"
	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/usecase/multiagent"
)

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return 2 }
func (e *fakeEmbedder) Name() string    { return "fake" }

type fakeStore struct {
	hits   []domain.ScoredChunk
	err    error
	userID string
	k      int
}

func (s *fakeStore) Add(context.Context, []domain.DocumentChunk) error { return nil }

func (s *fakeStore) SimilaritySearch(_ context.Context, userID string, _ []float32, k int) ([]domain.ScoredChunk, error) {
	s.userID, s.k = userID, k
	return s.hits, s.err
}

func hit(source, content string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{DocumentChunk: domain.DocumentChunk{Source: source, Content: content}, Score: score}
}

func TestDocumentSearchAnswers(t *testing.T) {
	store := &fakeStore{hits: []domain.ScoredChunk{
		hit("handbook.pdf", "Vacation is 25 days per year.", 0.9),
		hit("handbook.pdf", "Carry-over is capped at 5 days.", 0.7),
		hit("faq.txt", "Ask HR for exceptions.", 0.5),
	}}
	model := &promptModel{reply: "You get 25 vacation days."}
	ac := ctxWith(model, "")
	ac.UserID = "alice"

	a := NewDocumentSearch(store, &fakeEmbedder{}, 3, "local", nil)
	res, err := a.Handle(context.Background(), "how many vacation days do I get?", ac, nil)
	require.NoError(t, err)

	assert.Equal(t, "alice", store.userID)
	assert.Equal(t, 3, store.k)
	assert.Equal(t, "You get 25 vacation days.", res.Output)
	assert.Equal(t, confidenceDocuments, res.Confidence)
	assert.Equal(t, "handbook.pdf,faq.txt", res.Extra["sources"])

	prompt := model.lastPrompt()
	assert.Contains(t, prompt, "[1] (handbook.pdf) Vacation is 25 days per year.")
	assert.Contains(t, prompt, "[3] (faq.txt) Ask HR for exceptions.")
	assert.Contains(t, prompt, "Question: how many vacation days do I get?")
}

func TestDocumentSearchDefaultUserAndEmpty(t *testing.T) {
	store := &fakeStore{}
	a := NewDocumentSearch(store, &fakeEmbedder{}, 0, "local", nil)

	res, err := a.Handle(context.Background(), "what does my contract say", ctxWith(&promptModel{}, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, "local", store.userID)
	assert.Equal(t, defaultDocumentTopK, store.k)
	assert.Equal(t, confidenceNoDocuments, res.Confidence)
	assert.Contains(t, res.Output, "I could not find information in your documents")

	ac := ctxWith(&promptModel{}, "").WithValue(domain.MetaLanguage, "es")
	res, err = a.Handle(context.Background(), "qué dice mi contrato", ac, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "No pude encontrar información")
}

func TestDocumentSearchFailures(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		embedder *fakeEmbedder
		model    domain.LanguageModel
	}{
		{"embed error", &fakeStore{}, &fakeEmbedder{err: domain.ErrEmbeddingFailed}, &promptModel{}},
		{"store error", &fakeStore{err: domain.ErrVectorSearch}, &fakeEmbedder{}, &promptModel{}},
		{"model error", &fakeStore{hits: []domain.ScoredChunk{hit("a", "b", 1)}}, &fakeEmbedder{}, &promptModel{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewDocumentSearch(tt.store, tt.embedder, 2, "local", nil)
			res, err := a.Handle(context.Background(), "q", ctxWith(tt.model, ""), nil)
			require.NoError(t, err)
			isApology(t, res)
		})
	}
}

func TestBuiltinsAndRegister(t *testing.T) {
	cfg := config.Defaults()

	minimal := Builtins(cfg, Deps{})
	names := make([]string, 0, len(minimal))
	for _, a := range minimal {
		names = append(names, a.Name())
	}
	assert.ElementsMatch(t, []string{
		domain.AgentGeneral, domain.AgentSubjectInference, domain.AgentSummarizer, domain.AgentCodeInterpreter,
		domain.AgentOpenWeatherMap, domain.AgentWeather, domain.AgentTime, domain.AgentCurrentTime,
	}, names)

	full := Builtins(cfg, Deps{
		Search:    &fakeBackend{results: []search.Result{{Title: "t"}}},
		Documents: &fakeStore{},
		Embedder:  &fakeEmbedder{},
	})
	assert.Len(t, full, len(minimal)+3)

	reg := multiagent.NewRegistry(nil)
	registered, err := Register(reg, full, nil)
	require.NoError(t, err)
	assert.Len(t, registered, len(full))
	assert.True(t, reg.Has(domain.AgentResearch))
	assert.True(t, reg.Has(domain.AgentDocumentSearch))

	reg = multiagent.NewRegistry(nil)
	registered, err = Register(reg, full, []string{domain.AgentGeneral, domain.AgentWeather})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.AgentGeneral, domain.AgentWeather}, registered)
	assert.ElementsMatch(t, []string{domain.AgentGeneral, domain.AgentWeather}, reg.Names())

	_, err = Register(reg, []domain.Agent{domain.NewAgentFunc(" ", "", nil)}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewSearchBackend(t *testing.T) {
	assert.Nil(t, NewSearchBackend(config.SearchConfig{}, nil))
	b := NewSearchBackend(config.SearchConfig{SearXNGURL: "http://searx.local"}, nil)
	require.NotNil(t, b)
	assert.Equal(t, "searxng", b.Name())
}

// Research runs end to end through a real registry.
func TestResearchThroughRegistry(t *testing.T) {
	model := domain.LanguageModelFunc(func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Search query:"):
			return "Go programming language", nil
		case strings.Contains(prompt, "Summarize the following"):
			return "Go is a language from Google.", nil
		}
		return "", errors.New("unexpected prompt")
	})

	reg := multiagent.NewRegistry(nil)
	backend := &fakeBackend{results: []search.Result{{Title: "Go", URL: "https://go.dev", Content: "Go is an open source language by Google."}}}
	_, err := Register(reg, []domain.Agent{
		NewResearch(nil), NewSubjectInference(nil), NewSearch(backend, 3, nil), NewSummarizer(nil),
	}, nil)
	require.NoError(t, err)

	ac := ctxWith(model, "what is golang")
	res, err := reg.Call(context.Background(), domain.AgentResearch, "what is golang", ac)
	require.NoError(t, err)
	assert.Equal(t, "Go is a language from Google.", res.Output)
	assert.Equal(t, "Go programming language", backend.query)
	assert.Equal(t, confidenceSummary, res.Confidence)
}
