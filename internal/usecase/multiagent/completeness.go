package multiagent

import (
	"strings"
	"unicode/utf8"

	"switchboard/internal/domain"
	"switchboard/internal/usecase/classify"
)

// DefaultCompletenessWeight scales self-reported confidence in the score.
const DefaultCompletenessWeight = 0.6

const (
	veryShortResponse = 20
	shortResponse     = 50
	longResponse      = 2000

	giveUpPenalty        = 0.15
	maxGiveUpPenalty     = 0.45
	factualPenaltyFactor = 1.5
	greetingBonus        = 0.15
	maxGreetingReply     = 200
	factualMarkerBonus   = 0.05
	maxFactualBonus      = 0.2
	followUpBonus        = 0.1
)

// giveUpPhrases signal that an agent declined to answer.
var giveUpPhrases = []string{
	"i don't know", "i do not know", "i don't have enough information",
	"i do not have enough information", "i need to search", "i would need to search",
	"could you clarify", "can you clarify", "could you please clarify", "please clarify",
	"i'm not sure", "i am not sure", "i cannot find", "i can't find", "i couldn't find",
	"unable to find", "i don't have access", "i do not have access", "no information available",
	"no sé", "no lo sé", "no tengo suficiente información", "no tengo información",
	"necesito buscar", "podrías aclarar", "puedes aclarar", "no estoy seguro",
	"no encontré", "no pude encontrar", "no tengo acceso",
}

// CompletenessScorer re-grades an agent's text against checkable signals.
// The zero value is not usable; use NewCompletenessScorer.
type CompletenessScorer struct {
	weight float64
	cls    Classifiers
}

// NewCompletenessScorer creates a scorer. weight <= 0 selects
// DefaultCompletenessWeight.
func NewCompletenessScorer(weight float64, cls Classifiers) *CompletenessScorer {
	if weight <= 0 {
		weight = DefaultCompletenessWeight
	}
	return &CompletenessScorer{weight: weight, cls: cls.withDefaults()}
}

// EvaluateResponseCompleteness scores response with the default weight and
// classifiers. input and history may be empty.
func EvaluateResponseCompleteness(response string, confidence float64, input string, history []domain.Message) float64 {
	return NewCompletenessScorer(DefaultCompletenessWeight, DefaultClassifiers()).Score(response, confidence, input, history)
}

// Score returns the completeness of response in [0,1].
func (s *CompletenessScorer) Score(response string, confidence float64, input string, history []domain.Message) float64 {
	text := strings.TrimSpace(response)
	lower := strings.ToLower(text)
	score := confidence * s.weight

	switch n := utf8.RuneCountInString(text); {
	case n < veryShortResponse:
		score -= 0.2
	case n < shortResponse:
		score -= 0.05
	case n <= longResponse:
		score += 0.2
	default:
		score -= 0.05
	}

	hits := 0
	for _, p := range giveUpPhrases {
		if strings.Contains(lower, p) {
			hits++
		}
	}
	if hits > 0 {
		penalty := min(float64(hits)*giveUpPenalty, maxGiveUpPenalty)
		if input != "" && (s.cls.QueryType(input) == classify.QueryFactual || s.cls.IsCompanyQuery(input)) {
			penalty *= factualPenaltyFactor
		}
		score -= penalty
	}

	if input != "" && s.cls.IsGreeting(input) && utf8.RuneCountInString(text) <= maxGreetingReply {
		score += greetingBonus
	}

	score += min(float64(s.cls.FactualMarkers(text))*factualMarkerBonus, maxFactualBonus)

	if input != "" && len(history) > 0 && s.cls.IsFactualFollowUp(input, history) &&
		classify.SharesProperNoun(history[len(history)-1].Content, text) {
		score += followUpBonus
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
