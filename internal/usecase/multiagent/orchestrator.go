package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
)

// Route paths recorded on every RouteResult.
const (
	PathMention       = "mention"
	PathDocument      = "document"
	PathDocumentProbe = "document_probe"
	PathWeather       = "weather"
	PathGreeting      = "greeting"
	PathSingle        = "single"
	PathDual          = "dual"
	PathFallback      = "fallback"
)

// Options holds the tunable routing constants.
type Options struct {
	HighConfidence         float64
	MediumConfidence       float64
	CompletenessWeight     float64
	SummarizerMargin       float64
	MinOutputLength        int
	DocumentProbeMinLength int
	AgentTimeout           time.Duration
	MaxParallel            int
}

// DefaultOptions returns the default routing constants.
func DefaultOptions() Options {
	return Options{
		HighConfidence:         0.6,
		MediumConfidence:       0.4,
		CompletenessWeight:     DefaultCompletenessWeight,
		SummarizerMargin:       0.15,
		MinOutputLength:        10,
		DocumentProbeMinLength: 50,
		AgentTimeout:           30 * time.Second,
		MaxParallel:            8,
	}
}

// RouteResult is the outcome of one routing decision. Agent and Result are
// always set; All holds every result produced along the way.
type RouteResult struct {
	Agent      string                        `json:"agent"`
	Result     domain.AgentResult            `json:"result"`
	All        map[string]domain.AgentResult `json:"all"`
	Path       string                        `json:"path"`
	Prediction *Prediction                   `json:"prediction,omitempty"`
}

// Step is one stage of a RunSteps pipeline. Input derives the stage's input
// from the previous stage's result; nil passes the previous output through.
type Step struct {
	Agent string
	Input func(prev domain.AgentResult, ac *domain.AgentContext) string
}

// Orchestrator decides which agents answer a query.
type Orchestrator struct {
	registry *Registry
	mentions *PrefixRouter
	model    domain.LanguageModel
	opts     Options
	cls      Classifiers
	scorer   *CompletenessScorer
	logger   *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOptions replaces the routing constants. Zero fields keep defaults.
func WithOptions(opts Options) OrchestratorOption {
	return func(o *Orchestrator) {
		d := o.opts
		if opts.HighConfidence > 0 {
			d.HighConfidence = opts.HighConfidence
		}
		if opts.MediumConfidence > 0 {
			d.MediumConfidence = opts.MediumConfidence
		}
		if opts.CompletenessWeight > 0 {
			d.CompletenessWeight = opts.CompletenessWeight
		}
		if opts.SummarizerMargin > 0 {
			d.SummarizerMargin = opts.SummarizerMargin
		}
		if opts.MinOutputLength > 0 {
			d.MinOutputLength = opts.MinOutputLength
		}
		if opts.DocumentProbeMinLength > 0 {
			d.DocumentProbeMinLength = opts.DocumentProbeMinLength
		}
		if opts.AgentTimeout > 0 {
			d.AgentTimeout = opts.AgentTimeout
		}
		if opts.MaxParallel > 0 {
			d.MaxParallel = opts.MaxParallel
		}
		o.opts = d
	}
}

// WithClassifiers swaps some or all of the text classifiers.
func WithClassifiers(c Classifiers) OrchestratorOption {
	return func(o *Orchestrator) { o.cls = c.withDefaults() }
}

// WithModel sets the routing model used when the context carries none.
func WithModel(m domain.LanguageModel) OrchestratorOption {
	return func(o *Orchestrator) { o.model = m }
}

// NewOrchestrator creates an Orchestrator over registry.
func NewOrchestrator(registry *Registry, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = discardLogger()
	}
	o := &Orchestrator{
		registry: registry,
		mentions: NewPrefixRouter(registry, logger),
		opts:     DefaultOptions(),
		cls:      DefaultClassifiers(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.scorer = NewCompletenessScorer(o.opts.CompletenessWeight, o.cls)
	return o
}

// Options returns the routing constants in effect.
func (o *Orchestrator) Options() Options { return o.opts }

// RouteByConfidence picks the agent that answers query. It never fails:
// any internal error yields the fallback result.
func (o *Orchestrator) RouteByConfidence(ctx context.Context, candidates []string, query string, ac *domain.AgentContext) (rr RouteResult) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.route")
	defer span.End()

	ac = o.prepareContext(ctx, query, ac)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("routing panicked: %v: %w", rec, domain.ErrRoutingFailure)
			o.logger.Error("routing failed", "session_id", ac.SessionID, "error", err)
			tracer.RecordError(span, err)
			rr = o.fallback(ac, rr.All)
		}
		span.SetAttributes(
			tracer.StringAttr("route.agent", rr.Agent),
			tracer.StringAttr("route.path", rr.Path),
		)
		o.logger.Info("routed",
			"session_id", ac.SessionID,
			"agent", rr.Agent,
			"path", rr.Path,
			"confidence", rr.Result.Confidence,
		)
	}()

	names := o.candidates(candidates)
	ac.AvailableAgents = names

	if rr, ok := o.shortcut(ctx, names, query, ac); ok {
		tracer.SetOK(span)
		return rr
	}

	if len(names) == 0 {
		o.logger.Warn("no registered candidate agents", "requested", candidates)
		return o.fallback(ac, nil)
	}

	if o.cls.IsGreeting(query) && slices.Contains(names, domain.AgentGeneral) {
		res, _ := o.invoke(ctx, domain.AgentGeneral, query, ac)
		tracer.SetOK(span)
		return resolved(domain.AgentGeneral, res, PathGreeting, nil)
	}

	pred := o.predict(ctx, query, names, ac)
	o.logger.Debug("prediction", "agent", pred.Agent, "confidence", pred.Confidence, "source", pred.Source)

	all := make(map[string]domain.AgentResult)
	succeeded := make(map[string]bool)

	if pred.Confidence >= o.opts.HighConfidence {
		res, err := o.invoke(ctx, pred.Agent, query, ac)
		all[pred.Agent] = res
		if err == nil {
			succeeded[pred.Agent] = true
			if o.usable(res) {
				rr := RouteResult{Agent: pred.Agent, Result: res, All: all, Path: PathSingle, Prediction: &pred}
				tracer.SetOK(span)
				return rr
			}
		}
	} else if pred.Confidence < o.opts.MediumConfidence {
		o.logger.Debug("low prediction confidence, running safety net", "agent", pred.Agent)
	}

	// Medium confidence, or the single run was unusable: predicted agent and
	// general side by side.
	dual := []string{}
	if _, ran := all[pred.Agent]; !ran {
		dual = append(dual, pred.Agent)
	}
	if pred.Agent != domain.AgentGeneral && o.registry.Has(domain.AgentGeneral) {
		dual = append(dual, domain.AgentGeneral)
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range dual {
		g.Go(func() error {
			res, err := o.invoke(gctx, name, query, ac)
			mu.Lock()
			defer mu.Unlock()
			all[name] = res
			if err == nil {
				succeeded[name] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	rr = o.resolve(pred, all, succeeded, query, ac)
	if rr.Path == PathFallback {
		tracer.RecordError(span, domain.ErrRoutingFailure)
	} else {
		tracer.SetOK(span)
	}
	return rr
}

// resolve prefers a usable predicted result, then a usable general result,
// then whichever successful result completes the query best.
func (o *Orchestrator) resolve(pred Prediction, all map[string]domain.AgentResult, succeeded map[string]bool, query string, ac *domain.AgentContext) RouteResult {
	for _, name := range []string{pred.Agent, domain.AgentGeneral} {
		if succeeded[name] && o.usable(all[name]) {
			return RouteResult{Agent: name, Result: all[name], All: all, Path: PathDual, Prediction: &pred}
		}
	}

	ok := make(map[string]domain.AgentResult, len(succeeded))
	for name := range succeeded {
		ok[name] = all[name]
	}
	if name, res, found := o.SelectBest(ok, query, ac.History); found {
		return RouteResult{Agent: name, Result: res, All: all, Path: PathDual, Prediction: &pred}
	}

	rr := o.fallback(ac, all)
	rr.Prediction = &pred
	return rr
}

// shortcut runs the classification rules that bypass model prediction:
// explicit mention, document context, first-turn document probe, weather.
func (o *Orchestrator) shortcut(ctx context.Context, names []string, query string, ac *domain.AgentContext) (RouteResult, bool) {
	if agent, rest, ok := o.mentions.Route(query, names); ok {
		if res, err := o.invoke(ctx, agent, rest, ac); err == nil {
			return resolved(agent, res, PathMention, nil), true
		}
	}

	if slices.Contains(names, domain.AgentDocumentSearch) {
		hasDoc := o.cls.HasDocumentContext(ac.History)
		if hasDoc && o.cls.IsDocumentQuery(query, true) {
			if res, err := o.invoke(ctx, domain.AgentDocumentSearch, query, ac); err == nil {
				return resolved(domain.AgentDocumentSearch, res, PathDocument, nil), true
			}
		} else if len(ac.History) == 0 && o.cls.IsDocumentQuery(query, false) {
			res, err := o.invoke(ctx, domain.AgentDocumentSearch, query, ac)
			if err == nil && o.probeAccepted(res) {
				return resolved(domain.AgentDocumentSearch, res, PathDocumentProbe, nil), true
			}
			o.logger.Debug("document probe rejected", "output_len", len(res.Output), "confidence", res.Confidence)
		}
	}

	if o.cls.IsWeather(query) {
		for _, name := range []string{domain.AgentOpenWeatherMap, domain.AgentWeather} {
			if !slices.Contains(names, name) {
				continue
			}
			if res, err := o.invoke(ctx, name, query, ac); err == nil {
				return resolved(name, res, PathWeather, nil), true
			}
			break
		}
	}
	return RouteResult{}, false
}

var noDocumentPhrases = []string{
	"no document", "cannot find", "can't find", "could not find", "couldn't find", "no information",
	"no encontr", "ningún documento", "ningun documento", "no hay información", "no hay informacion",
}

// probeAccepted reports whether a speculative document_search answer is
// good enough to return. A self-reported failure never is.
func (o *Orchestrator) probeAccepted(res domain.AgentResult) bool {
	if res.Confidence <= domain.ConfidenceError {
		return false
	}
	if utf8.RuneCountInString(res.Output) <= o.opts.DocumentProbeMinLength {
		return false
	}
	lower := strings.ToLower(res.Output)
	for _, p := range noDocumentPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) usable(res domain.AgentResult) bool {
	return utf8.RuneCountInString(strings.TrimSpace(res.Output)) > o.opts.MinOutputLength
}

// candidates keeps the registered names from requested, in order and
// without duplicates. An empty request means every registered agent.
func (o *Orchestrator) candidates(requested []string) []string {
	if len(requested) == 0 {
		return o.registry.Names()
	}
	out := make([]string, 0, len(requested))
	for _, name := range requested {
		if o.registry.Has(name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func (o *Orchestrator) prepareContext(ctx context.Context, query string, ac *domain.AgentContext) *domain.AgentContext {
	if ac == nil {
		ac = domain.NewAgentContext(domain.SessionIDFromContext(ctx), query, nil)
	} else {
		ac = ac.Clone()
	}
	if ac.Input == "" {
		ac.Input = query
	}
	if ac.Value(domain.MetaLanguage) == "" {
		ac = ac.WithValue(domain.MetaLanguage, o.cls.DetectLanguage(query))
	}
	return ac
}

func resolved(agent string, res domain.AgentResult, path string, pred *Prediction) RouteResult {
	return RouteResult{
		Agent:      agent,
		Result:     res,
		All:        map[string]domain.AgentResult{agent: res},
		Path:       path,
		Prediction: pred,
	}
}

// fallback is the terminal result when no agent could answer.
func (o *Orchestrator) fallback(ac *domain.AgentContext, all map[string]domain.AgentResult) RouteResult {
	if all == nil {
		all = map[string]domain.AgentResult{}
	}
	msg := "I'm sorry, I couldn't process your request right now. Please try again later."
	if ac != nil && ac.Value(domain.MetaLanguage) == "es" {
		msg = "Lo siento, no pude procesar tu solicitud en este momento. Por favor, inténtalo más tarde."
	}
	return RouteResult{
		Agent:  domain.AgentFallback,
		Result: domain.AgentResult{Output: msg, Confidence: domain.ConfidenceNone},
		All:    all,
		Path:   PathFallback,
	}
}

// SelectBest returns the result with the highest completeness. A summarizer
// only beats the best non-summarizer result when it scores at least
// SummarizerMargin higher. found is false when results is empty.
func (o *Orchestrator) SelectBest(results map[string]domain.AgentResult, input string, history []domain.Message) (name string, res domain.AgentResult, found bool) {
	bestName, bestScore := "", -1.0
	otherName, otherScore := "", -1.0

	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	slices.Sort(names)

	for _, n := range names {
		r := results[n]
		score := o.scorer.Score(r.Output, r.Confidence, input, history)
		if score > bestScore {
			bestName, bestScore = n, score
		}
		if n != domain.AgentSummarizer && score > otherScore {
			otherName, otherScore = n, score
		}
	}
	if bestName == "" {
		return "", domain.AgentResult{}, false
	}
	if bestName == domain.AgentSummarizer && otherName != "" && bestScore-otherScore < o.opts.SummarizerMargin {
		bestName = otherName
	}
	return bestName, results[bestName], true
}

// RunParallel invokes every registered agent in names concurrently and
// returns each result keyed by name. Unknown names are skipped; if none
// remain, the first registered of general, web_search and research stands
// in. A failing agent contributes the standard error result and never
// affects its siblings.
func (o *Orchestrator) RunParallel(ctx context.Context, names []string, input string, ac *domain.AgentContext) map[string]domain.AgentResult {
	ac = o.prepareContext(ctx, input, ac)

	run := make([]string, 0, len(names))
	for _, n := range names {
		if !o.registry.Has(n) {
			o.logger.Warn("skipping unregistered agent", "agent", n)
			continue
		}
		if !slices.Contains(run, n) {
			run = append(run, n)
		}
	}
	if len(run) == 0 {
		for _, n := range []string{domain.AgentGeneral, domain.AgentWebSearch, domain.AgentResearch} {
			if o.registry.Has(n) {
				o.logger.Warn("no requested agent registered, substituting", "agent", n)
				run = append(run, n)
				break
			}
		}
	}

	results := make(map[string]domain.AgentResult, len(run))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxParallel)
	for _, name := range run {
		g.Go(func() error {
			res, _ := o.invoke(gctx, name, input, ac)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RunSteps runs steps strictly in order, feeding each step the previous
// step's result. It returns the results produced so far and stops at the
// first failing step.
func (o *Orchestrator) RunSteps(ctx context.Context, steps []Step, ac *domain.AgentContext) ([]domain.AgentResult, error) {
	var input string
	if ac != nil {
		input = ac.Input
	}
	ac = o.prepareContext(ctx, input, ac)

	prev := domain.AgentResult{Output: ac.Input, Confidence: 1}
	out := make([]domain.AgentResult, 0, len(steps))
	for i, step := range steps {
		in := prev.Output
		if step.Input != nil {
			in = step.Input(prev, ac)
		}
		res, err := o.invoke(ctx, step.Agent, in, ac)
		out = append(out, res)
		if err != nil {
			return out, domain.WrapOp(fmt.Sprintf("step %d (%s)", i+1, step.Agent), err)
		}
		prev = res
	}
	return out, nil
}
