package multiagent

import (
	"switchboard/internal/domain"
	"switchboard/internal/usecase/classify"
)

// Classifiers are the pure text classifiers the orchestrator consults.
// Any nil field falls back to the classify package implementation, so a
// caller can swap a single classifier without touching the rest.
type Classifiers struct {
	QueryType          func(query string) classify.QueryType
	IsGreeting         func(query string) bool
	IsDocumentQuery    func(query string, hasDocumentContext bool) bool
	HasDocumentContext func(history []domain.Message) bool
	IsWeather          func(query string) bool
	IsFactualFollowUp  func(query string, history []domain.Message) bool
	IsCompanyQuery     func(query string) bool
	FactualMarkers     func(text string) int
	DetectLanguage     func(text string) string
}

// DefaultClassifiers returns the keyword/regex classifiers.
func DefaultClassifiers() Classifiers {
	return Classifiers{
		QueryType:          classify.ClassifyQueryType,
		IsGreeting:         classify.IsSimpleGreeting,
		IsDocumentQuery:    classify.IsDocumentRelatedQuery,
		HasDocumentContext: classify.HasDocumentContextInHistory,
		IsWeather:          classify.IsWeatherQuery,
		IsFactualFollowUp:  classify.IsFactualFollowUpQuery,
		IsCompanyQuery:     classify.IsCompanyRelatedQuery,
		FactualMarkers:     classify.FactualMarkerCount,
		DetectLanguage:     classify.DetectLanguage,
	}
}

func (c Classifiers) withDefaults() Classifiers {
	d := DefaultClassifiers()
	if c.QueryType == nil {
		c.QueryType = d.QueryType
	}
	if c.IsGreeting == nil {
		c.IsGreeting = d.IsGreeting
	}
	if c.IsDocumentQuery == nil {
		c.IsDocumentQuery = d.IsDocumentQuery
	}
	if c.HasDocumentContext == nil {
		c.HasDocumentContext = d.HasDocumentContext
	}
	if c.IsWeather == nil {
		c.IsWeather = d.IsWeather
	}
	if c.IsFactualFollowUp == nil {
		c.IsFactualFollowUp = d.IsFactualFollowUp
	}
	if c.IsCompanyQuery == nil {
		c.IsCompanyQuery = d.IsCompanyQuery
	}
	if c.FactualMarkers == nil {
		c.FactualMarkers = d.FactualMarkers
	}
	if c.DetectLanguage == nil {
		c.DetectLanguage = d.DetectLanguage
	}
	return c
}
