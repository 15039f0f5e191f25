package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactualMarkerCount(t *testing.T) {
	assert.Equal(t, 0, FactualMarkerCount("I am not sure."))
	assert.Equal(t, 2, FactualMarkerCount("Acme was founded in 2004."))
	assert.Equal(t, 2, FactualMarkerCount("Revenue was $3.2 billion"))
	assert.GreaterOrEqual(t, FactualMarkerCount("According to Reuters, the CEO said growth hit 12%."), 3)
	assert.Equal(t, 2, FactualMarkerCount("Fundada en 1975 en Albuquerque"))
}

func TestProperNouns(t *testing.T) {
	got := ProperNouns("The company was founded by Bill Gates. It is based in Redmond, near Seattle and IBM.")
	assert.Equal(t, []string{"Bill", "Gates", "Redmond", "Seattle", "IBM"}, got)
	assert.Empty(t, ProperNouns("nothing capitalized here"))
}

func TestSharesProperNoun(t *testing.T) {
	assert.True(t, SharesProperNoun("It was founded by Elon Musk.", "Later Musk became its CEO."))
	assert.False(t, SharesProperNoun("It was founded by Elon Musk.", "It rains a lot in Seattle."))
	assert.False(t, SharesProperNoun("no nouns", "Later Musk did things."))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangSpanish, DetectLanguage("¿Cuál es la capital?"))
	assert.Equal(t, LangSpanish, DetectLanguage("dime el clima de hoy en la ciudad"))
	assert.Equal(t, LangEnglish, DetectLanguage("what is the capital of France"))
	assert.Equal(t, LangEnglish, DetectLanguage(""))
}
