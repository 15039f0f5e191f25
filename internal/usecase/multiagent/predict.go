package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"switchboard/internal/domain"
	"switchboard/internal/usecase/classify"
	"switchboard/internal/usecase/formatter"
)

// Prediction sources, most to least trusted.
const (
	SourceJSON      = "json"
	SourceExtracted = "extracted"
	SourceMention   = "mention"
	SourceKeyword   = "keyword"
	SourceDefault   = "default"
)

const (
	weatherMentionConfidence  = 0.85
	mentionConfidence         = 0.6
	timeKeywordConfidence     = 0.7
	researchKeywordConfidence = 0.6
	defaultConfidence         = 0.5
)

// Prediction is the routing model's choice of agent.
type Prediction struct {
	Agent      string  `json:"agentName"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Source     string  `json:"-"`
}

const predictionSchemaJSON = `{
	"type": "object",
	"properties": {
		"agentName": {"type": "string", "minLength": 1},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"}
	},
	"required": ["agentName", "confidence"]
}`

var predictionSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(predictionSchemaJSON))
})

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// jsonObjectRe finds the outermost-looking JSON object inside prose.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// stripCodeFences removes markdown code fences if the LLM wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// predict asks the language model which candidate should answer query.
// It never fails: an unusable model reply degrades through the parse
// cascade down to keyword classification and finally the general agent.
func (o *Orchestrator) predict(ctx context.Context, query string, candidates []string, ac *domain.AgentContext) Prediction {
	model := ac.Model
	if model == nil {
		model = o.model
	}
	if model == nil {
		return o.keywordPrediction(query, candidates)
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.AgentTimeout)
	defer cancel()

	raw, err := model.Invoke(ctx, o.predictionPrompt(query, candidates, ac))
	if err != nil {
		o.logger.Warn("routing prediction failed, using keywords", "error", err)
		return o.keywordPrediction(query, candidates)
	}

	p, err := parsePrediction(raw, candidates)
	if err != nil {
		o.logger.Debug("routing prediction unparseable", "error", err)
		return o.keywordPrediction(query, candidates)
	}
	return p
}

// parsePrediction runs the structured tiers of the cascade: direct JSON,
// a JSON object embedded in prose, then candidate names mentioned in text.
func parsePrediction(raw string, candidates []string) (Prediction, error) {
	text := stripCodeFences(raw)

	if p, err := decodePrediction(text, candidates); err == nil {
		p.Source = SourceJSON
		return p, nil
	}
	if obj := jsonObjectRe.FindString(text); obj != "" {
		if p, err := decodePrediction(obj, candidates); err == nil {
			p.Source = SourceExtracted
			return p, nil
		}
	}
	if p, ok := mentionedAgent(text, candidates); ok {
		return p, nil
	}
	return Prediction{}, domain.NewDomainError("parsePrediction", domain.ErrPredictionParse, truncate(raw, 200))
}

func decodePrediction(text string, candidates []string) (Prediction, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return Prediction{}, err
	}
	if _, ok := fields["agentName"]; !ok {
		for _, alt := range []string{"agent_name", "agent"} {
			if v, ok := fields[alt]; ok {
				fields["agentName"] = v
				break
			}
		}
	}

	schema, err := predictionSchema()
	if err != nil {
		return Prediction{}, fmt.Errorf("compile prediction schema: %w", err)
	}
	if result := schema.Validate(fields); !result.IsValid() {
		return Prediction{}, fmt.Errorf("prediction does not match schema: %s", result.Error())
	}

	name := strings.ToLower(strings.TrimSpace(fields["agentName"].(string)))
	if !slices.Contains(candidates, name) {
		return Prediction{}, fmt.Errorf("predicted agent %q is not a candidate", name)
	}
	p := Prediction{Agent: name, Confidence: fields["confidence"].(float64)}
	if r, ok := fields["reasoning"].(string); ok {
		p.Reasoning = r
	}
	return p, nil
}

// mentionedAgent scans free text for a candidate name. Weather agents win
// with high confidence; longer names are tried first so current_time is
// not read as time.
func mentionedAgent(text string, candidates []string) (Prediction, bool) {
	lower := strings.ToLower(text)
	for _, w := range []string{domain.AgentOpenWeatherMap, domain.AgentWeather} {
		if slices.Contains(candidates, w) && mentions(lower, w) {
			return Prediction{Agent: w, Confidence: weatherMentionConfidence, Source: SourceMention}, true
		}
	}

	byLength := slices.Clone(candidates)
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, name := range byLength {
		if mentions(lower, name) {
			return Prediction{Agent: name, Confidence: mentionConfidence, Source: SourceMention}, true
		}
	}
	return Prediction{}, false
}

func mentions(text, name string) bool {
	re, err := regexp.Compile(`(^|[^a-z0-9_])` + regexp.QuoteMeta(name) + `($|[^a-z0-9_])`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// keywordPrediction is the last resort when the model gave nothing usable.
func (o *Orchestrator) keywordPrediction(query string, candidates []string) Prediction {
	switch o.cls.QueryType(query) {
	case classify.QueryTime:
		for _, name := range []string{domain.AgentTime, domain.AgentCurrentTime} {
			if slices.Contains(candidates, name) {
				return Prediction{Agent: name, Confidence: timeKeywordConfidence, Source: SourceKeyword}
			}
		}
	case classify.QueryFactual, classify.QueryResearch:
		if slices.Contains(candidates, domain.AgentResearch) {
			return Prediction{Agent: domain.AgentResearch, Confidence: researchKeywordConfidence, Source: SourceKeyword}
		}
	}
	return Prediction{Agent: defaultAgent(candidates), Confidence: defaultConfidence, Source: SourceDefault}
}

// defaultAgent is general when it is a candidate, else the first candidate.
func defaultAgent(candidates []string) string {
	if len(candidates) == 0 || slices.Contains(candidates, domain.AgentGeneral) {
		return domain.AgentGeneral
	}
	return candidates[0]
}

const predictionRules = `Choose exactly one agent using these rules, in priority order:
1. Questions outside the assistant's topic go to general, which will decline politely.
2. Greetings, thanks and small talk go to general.
3. Arithmetic goes to a calculator agent, currency conversion to a currency agent, unit conversion to a units agent, hashing to a hashing agent, when such agents are listed.
4. Questions about the current time or date go to time or current_time.
5. Questions about the weather go to open_weather_map (or weather).
6. Questions about an uploaded document go to document_search.
7. Questions needing current or factual information from the web go to research.
8. Requests to explain or review code go to code_interpreter; requests to write code go to code_interpreter too.
9. When a document was recently uploaded and the question is ambiguous, prefer document_search.
10. Everything else goes to general.`

func (o *Orchestrator) predictionPrompt(query string, candidates []string, ac *domain.AgentContext) string {
	var b strings.Builder
	b.WriteString("You route user messages to the single best agent.\n\nAvailable agents:\n")
	for _, name := range candidates {
		desc := ""
		if a, ok := o.registry.Get(name); ok {
			desc = a.Description()
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, desc)
	}
	b.WriteString("\n")
	b.WriteString(predictionRules)
	if ac.Topic != "" {
		fmt.Fprintf(&b, "\n\nThe assistant only discusses: %s.", ac.Topic)
	}
	if h := formatter.FormatHistory(ac.History, 4); h != "" {
		fmt.Fprintf(&b, "\n\nRecent conversation:\n%s", h)
	}
	fmt.Fprintf(&b, "\n\nUser message: %s\n\n", query)
	b.WriteString(`Respond with JSON only: {"agentName": "<agent>", "confidence": <0.0-1.0>, "reasoning": "<short reason>"}`)
	return b.String()
}

// truncate shortens a string to maxLen bytes on a clean UTF-8 boundary,
// appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	end := 0
	for i := range s {
		if i > maxLen {
			break
		}
		end = i
	}
	return s[:end] + "..."
}
