package classify

import (
	"regexp"
	"strings"
	"unicode"
)

var factualMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`),
	regexp.MustCompile(`\$\s?\d`),
	regexp.MustCompile(`(?i)\b\d[\d.,]*\s?(usd|eur|dollars|euros|d[óo]lares|million|billion|millones|mil millones)\b`),
	regexp.MustCompile(`(?i)\bfounded (in|by)\b`),
	regexp.MustCompile(`(?i)\bfundad[ao] (en|por)\b`),
	regexp.MustCompile(`(?i)\bheadquarter(s|ed)\b`),
	regexp.MustCompile(`(?i)\bsede (central|en)\b`),
	regexp.MustCompile(`\bCEO\b`),
	regexp.MustCompile(`(?i)\baccording to\b`),
	regexp.MustCompile(`(?i)\bseg[úu]n (el|la|los|las|datos)\b`),
	regexp.MustCompile(`\d+(\.\d+)?\s?%`),
}

// FactualMarkerCount returns how many distinct kinds of concrete factual
// marker (years, money amounts, founding/headquarters facts, attributions,
// percentages) appear in text.
func FactualMarkerCount(text string) int {
	n := 0
	for _, p := range factualMarkerPatterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

var properNounStopwords = map[string]bool{
	"I": true, "The": true, "A": true, "An": true, "It": true, "This": true, "That": true,
	"El": true, "La": true, "Los": true, "Las": true, "Un": true, "Una": true,
	"Yes": true, "No": true, "Sí": true, "Si": true,
}

// ProperNouns returns the capitalized words of text that do not open a
// sentence, plus acronyms anywhere, de-duplicated in order of appearance.
func ProperNouns(text string) []string {
	var out []string
	seen := make(map[string]bool)
	sentenceStart := true
	for _, raw := range strings.Fields(text) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		endsSentence := strings.ContainsAny(raw[len(raw)-1:], ".!?")
		if word != "" && !properNounStopwords[word] && !seen[word] {
			first := []rune(word)[0]
			if isAcronym(word) || (unicode.IsUpper(first) && !sentenceStart) {
				seen[word] = true
				out = append(out, word)
			}
		}
		sentenceStart = endsSentence
	}
	return out
}

func isAcronym(word string) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// SharesProperNoun reports whether a and b mention a common proper noun.
func SharesProperNoun(a, b string) bool {
	nouns := ProperNouns(a)
	if len(nouns) == 0 {
		return false
	}
	other := make(map[string]bool)
	for _, n := range ProperNouns(b) {
		other[n] = true
	}
	for _, n := range nouns {
		if other[n] {
			return true
		}
	}
	return false
}

// Language codes returned by DetectLanguage.
const (
	LangEnglish = "en"
	LangSpanish = "es"
)

var spanishWords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "de": true, "que": true, "qué": true,
	"es": true, "en": true, "y": true, "un": true, "una": true, "por": true, "para": true,
	"cómo": true, "como": true, "cuál": true, "dónde": true, "cuándo": true, "quién": true,
	"hola": true, "gracias": true, "está": true, "son": true, "con": true, "mi": true,
	"tu": true, "del": true, "al": true, "hace": true, "hoy": true,
}

var englishWords = map[string]bool{
	"the": true, "is": true, "are": true, "what": true, "how": true, "and": true, "of": true,
	"to": true, "in": true, "a": true, "an": true, "for": true, "with": true, "my": true,
	"your": true, "hello": true, "thanks": true, "it": true, "do": true, "does": true,
	"who": true, "when": true, "where": true, "today": true, "please": true,
}

// DetectLanguage returns LangSpanish or LangEnglish. Inverted punctuation
// or ñ decides immediately; otherwise the language with more common
// function words wins, ties going to English.
func DetectLanguage(text string) string {
	if strings.ContainsAny(text, "¿¡ñÑ") {
		return LangSpanish
	}
	var es, en int
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		w := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) })
		if spanishWords[w] {
			es++
		}
		if englishWords[w] {
			en++
		}
	}
	if es > en {
		return LangSpanish
	}
	return LangEnglish
}
