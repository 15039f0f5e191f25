// Package classify holds the keyword and regex classifiers used as routing
// shortcuts and as completeness-scoring inputs. Every function is pure and
// understands English and Spanish.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"switchboard/internal/domain"
)

// QueryType is the coarse label ClassifyQueryType assigns to a query.
type QueryType string

const (
	QueryWeather  QueryType = "weather"
	QueryTime     QueryType = "time"
	QueryFactual  QueryType = "factual"
	QueryResearch QueryType = "research"
	QueryGeneral  QueryType = "general"
)

var weatherKeywords = []string{
	"weather", "forecast", "temperature", "humidity", "raining", "snowing",
	"sunny", "cloudy", "windy", "degrees outside",
	"clima", "pronóstico", "pronostico", "temperatura", "humedad", "lluvia",
	"llueve", "lloverá", "llovera", "nieve", "nublado", "soleado",
}

// weatherWordRe matches any weather keyword as a whole word, so "clima"
// does not fire on "climate".
var weatherWordRe = wordListPattern(weatherKeywords)

var weatherPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhow (hot|cold|warm|humid|windy) (is|will)\b`),
	regexp.MustCompile(`\bis it (going to )?(rain|snow)`),
	regexp.MustCompile(`\bqu[ée] tiempo (hace|har[áa])`),
	regexp.MustCompile(`\b(hace|har[áa]) (fr[íi]o|calor)\b`),
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat time\b`),
	regexp.MustCompile(`\b(current|local) time\b`),
	regexp.MustCompile(`\btime is it\b`),
	regexp.MustCompile(`\bwhat('s| is) (the )?(date|day) today\b`),
	regexp.MustCompile(`\btoday'?s date\b`),
	regexp.MustCompile(`\bwhat day is (it|today)\b`),
	regexp.MustCompile(`\bqu[ée] hora\b`),
	regexp.MustCompile(`\bhora actual\b`),
	regexp.MustCompile(`\bqu[ée] (d[íi]a|fecha) es\b`),
}

var factualPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bwho (is|was|are|were|founded|invented|created|owns|wrote|discovered)\b`),
	regexp.MustCompile(`\bwhen (was|were|did|is)\b`),
	regexp.MustCompile(`\bwhere (is|was|are)\b`),
	regexp.MustCompile(`\bhow (many|much|old|tall|big|long|far)\b`),
	regexp.MustCompile(`\bwhat (is|was) the (capital|population|height|size|name)\b`),
	regexp.MustCompile(`\b(founded|invented|headquartered|born) (in|by)\b`),
	regexp.MustCompile(`\bqui[ée]n (es|fue|fund[óo]|invent[óo]|cre[óo]|escribi[óo])`),
	regexp.MustCompile(`\bcu[áa]ndo (fue|se|naci[óo])`),
	regexp.MustCompile(`\bd[óo]nde (est[áa]|queda|naci[óo])`),
	regexp.MustCompile(`\bcu[áa]nt[oa]s? (habitantes|personas|a[ñn]os|mide|cuesta)\b`),
	regexp.MustCompile(`\bcu[áa]l es la (capital|poblaci[óo]n)\b`),
}

var researchKeywords = []string{
	"research", "investigate", "look up", "search for", "find information",
	"latest", "news", "recent developments", "tell me about", "learn about",
	"investiga", "busca", "buscar", "noticias", "últimas", "ultimas",
	"información sobre", "informacion sobre", "háblame de", "hablame de",
}

// ClassifyQueryType labels query. Priority: weather, time, factual,
// research; everything else is general.
func ClassifyQueryType(query string) QueryType {
	lower := normalize(query)
	if lower == "" {
		return QueryGeneral
	}
	switch {
	case IsWeatherQuery(lower):
		return QueryWeather
	case anyPattern(lower, timePatterns):
		return QueryTime
	case anyPattern(lower, factualPatterns):
		return QueryFactual
	case containsAny(lower, researchKeywords):
		return QueryResearch
	}
	return QueryGeneral
}

// IsWeatherQuery reports whether query asks about the weather.
func IsWeatherQuery(query string) bool {
	lower := normalize(query)
	return weatherWordRe.MatchString(lower) || anyPattern(lower, weatherPatterns)
}

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "hiya": true, "howdy": true, "yo": true,
	"greetings": true, "good morning": true, "good afternoon": true, "good evening": true,
	"hi there": true, "hello there": true, "hey there": true,
	"how are you": true, "how are you doing": true, "what's up": true, "whats up": true,
	"thanks": true, "thank you": true, "thx": true, "ok": true, "okay": true,
	"bye": true, "goodbye": true, "see you": true,
	"hola": true, "buenas": true, "buenos días": true, "buenos dias": true,
	"buenas tardes": true, "buenas noches": true, "qué tal": true, "que tal": true,
	"cómo estás": true, "como estas": true, "gracias": true, "muchas gracias": true,
	"vale": true, "adiós": true, "adios": true, "hasta luego": true, "saludos": true,
}

// greetingPrefixes are matched as the first word(s) of a short message.
var greetingPrefixes = []string{
	"hi", "hello", "hey", "hola", "buenas", "buenos días", "buenos dias",
	"good morning", "good afternoon", "good evening", "thanks", "gracias",
}

const maxGreetingWords = 4

// IsSimpleGreeting reports whether query is a greeting or pleasantry and
// nothing else: an exact match against the greeting list, or a short message
// that opens with a greeting and asks for nothing a specialist would answer.
func IsSimpleGreeting(query string) bool {
	text := trimPunct(normalize(query))
	if text == "" {
		return false
	}
	if greetings[text] {
		return true
	}
	if len(strings.Fields(text)) > maxGreetingWords {
		return false
	}
	for _, p := range greetingPrefixes {
		rest, ok := strings.CutPrefix(text, p)
		if !ok || rest == "" || !isSeparator(rest) {
			continue
		}
		rest = trimPunct(rest)
		if rest == "" || greetings[rest] {
			return true
		}
		return ClassifyQueryType(rest) == QueryGeneral && !IsDocumentRelatedQuery(rest, false)
	}
	return false
}

var documentKeywords = []string{
	"document", "pdf", "the file", "this file", "uploaded", "attachment", "attached",
	"the report", "this report", "the paper", "spreadsheet",
	"documento", "archivo", "fichero", "informe", "adjunto", "subí", "subido", "el pdf",
}

// documentFollowUps only count when a document is already in the conversation.
var documentFollowUps = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat (does|did) (it|this|that) (say|mention|state)\b`),
	regexp.MustCompile(`\bwhat(’|')?s? (is )?(this|it) about\b`),
	regexp.MustCompile(`\bsummar(y|ize|ise)\b`),
	regexp.MustCompile(`\b(key|main) (points|findings|takeaways)\b`),
	regexp.MustCompile(`\b(page|section|chapter|paragraph) \d+\b`),
	regexp.MustCompile(`\b(in|from) (it|there)\b`),
	regexp.MustCompile(`\bde qu[ée] (trata|habla)\b`),
	regexp.MustCompile(`\bqu[ée] dice\b`),
	regexp.MustCompile(`\bres[úu]m(e|en|elo|ir)\b`),
	regexp.MustCompile(`\bpuntos (clave|principales)\b`),
	regexp.MustCompile(`\b(p[áa]gina|secci[óo]n|cap[íi]tulo) \d+\b`),
}

// IsDocumentRelatedQuery reports whether query is about an uploaded
// document. Explicit document vocabulary always counts; ambiguous
// follow-ups ("what is this about?") count only when hasDocumentContext is
// true.
func IsDocumentRelatedQuery(query string, hasDocumentContext bool) bool {
	lower := normalize(query)
	if lower == "" {
		return false
	}
	if containsAny(lower, documentKeywords) {
		return true
	}
	return hasDocumentContext && anyPattern(lower, documentFollowUps)
}

var uploadMarkers = []string{
	"[pdf uploaded]", "[file uploaded]", "[document uploaded]", "[archivo subido]",
	"document", "documento", "archivo", "uploaded", "subido",
}

var fileNamePattern = regexp.MustCompile(`\b[\w\-]+\.(pdf|docx?|txt|md|csv|xlsx?|pptx?)\b`)

// HasDocumentContextInHistory reports whether any history entry mentions
// an upload: an explicit marker, a file name, or document vocabulary.
func HasDocumentContextInHistory(history []domain.Message) bool {
	for _, m := range history {
		lower := strings.ToLower(m.Content)
		if containsAny(lower, uploadMarkers) || fileNamePattern.MatchString(lower) {
			return true
		}
	}
	return false
}

var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(and|what about|how about|also)\b`),
	regexp.MustCompile(`\b(it|its|it's|they|them|their|he|she|his|her|that company|this company)\b`),
	regexp.MustCompile(`^(y|¿y|qu[ée] hay de)\b`),
	regexp.MustCompile(`(^|\s)(su|sus|él|ella|ellos|esa empresa|esta empresa|eso)($|[\s,.?!])`),
}

const maxFollowUpWords = 10

// IsFactualFollowUpQuery reports whether a short, pronoun-heavy query
// plausibly continues a factual exchange found in history.
func IsFactualFollowUpQuery(query string, history []domain.Message) bool {
	lower := normalize(query)
	if lower == "" || len(strings.Fields(lower)) > maxFollowUpWords {
		return false
	}
	if !anyPattern(lower, followUpPatterns) {
		return false
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleAssistant {
			continue
		}
		return FactualMarkerCount(history[i].Content) > 0 || len(ProperNouns(history[i].Content)) > 0
	}
	return false
}

var companyKeywords = []string{
	"company", "corporation", "corp", " inc", "ltd", "llc", "startup", "business",
	"ceo", "founder", "founded", "headquarters", "revenue", "employees", "stock price",
	"subsidiary", "acquisition", "ipo",
	"empresa", "compañía", "compania", "corporación", "corporacion", "fundador",
	"fundada", "fundó", "sede", "ingresos", "empleados", "acciones", "negocio",
}

// IsCompanyRelatedQuery reports whether query is about a company or
// organization.
func IsCompanyRelatedQuery(query string) bool {
	return containsAny(normalize(query), companyKeywords)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// trimPunct strips leading/trailing punctuation and whitespace, including
// the Spanish inverted marks.
func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '¡' || r == '¿'
	})
}

func isSeparator(rest string) bool {
	r := []rune(rest)[0]
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// wordListPattern builds a regexp matching any of words bounded by
// non-letters. \b is ASCII-only and misses accented endings like "lloverá".
func wordListPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}_])`)
}

func anyPattern(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
