package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a zoneinfo database

	"switchboard/internal/domain"
)

var ianaZoneRe = regexp.MustCompile(`\b([A-Z][A-Za-z_]+/[A-Z][A-Za-z_]+(?:/[A-Z][A-Za-z_]+)?)\b`)

// Common city names mapped to their zones, matched case-insensitively.
var cityZones = map[string]string{
	"new york":         "America/New_York",
	"nueva york":       "America/New_York",
	"los angeles":      "America/Los_Angeles",
	"chicago":          "America/Chicago",
	"mexico city":      "America/Mexico_City",
	"ciudad de méxico": "America/Mexico_City",
	"bogota":           "America/Bogota",
	"bogotá":           "America/Bogota",
	"lima":             "America/Lima",
	"santiago":         "America/Santiago",
	"buenos aires":     "America/Argentina/Buenos_Aires",
	"sao paulo":        "America/Sao_Paulo",
	"são paulo":        "America/Sao_Paulo",
	"london":           "Europe/London",
	"londres":          "Europe/London",
	"madrid":           "Europe/Madrid",
	"paris":            "Europe/Paris",
	"parís":            "Europe/Paris",
	"berlin":           "Europe/Berlin",
	"berlín":           "Europe/Berlin",
	"rome":             "Europe/Rome",
	"roma":             "Europe/Rome",
	"moscow":           "Europe/Moscow",
	"moscú":            "Europe/Moscow",
	"dubai":            "Asia/Dubai",
	"tokyo":            "Asia/Tokyo",
	"tokio":            "Asia/Tokyo",
	"beijing":          "Asia/Shanghai",
	"pekín":            "Asia/Shanghai",
	"singapore":        "Asia/Singapore",
	"sydney":           "Australia/Sydney",
	"utc":              "UTC",
}

var (
	weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	monthsES   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// Clock reports the current date and time. It is registered under both
// time and current_time.
type Clock struct {
	name   string
	zone   *time.Location
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.Agent = (*Clock)(nil)

// NewClock creates a clock agent registered under name. An empty or unknown
// zone name falls back to the local zone.
func NewClock(name, zone string, logger *slog.Logger) *Clock {
	logger = orDiscard(logger)
	loc := time.Local
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			logger.Warn("unknown time zone, using local", "zone", zone, "error", err)
		} else {
			loc = l
		}
	}
	return &Clock{name: name, zone: loc, now: time.Now, logger: logger}
}

// NewClockAgents returns the time agent and its current_time alias.
func NewClockAgents(zone string, logger *slog.Logger) []domain.Agent {
	primary := NewClock(domain.AgentTime, zone, logger)
	alias := *primary
	alias.name = domain.AgentCurrentTime
	return []domain.Agent{primary, &alias}
}

func (a *Clock) Name() string { return a.name }

func (a *Clock) Description() string {
	return "Current date and time, here or in a named city or time zone."
}

func (a *Clock) Handle(_ context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	loc, place := a.resolveZone(input)
	t := a.now().In(loc)
	lang := language(ac, input)

	var out string
	if lang == "es" {
		out = fmt.Sprintf("Son las %s del %s, %d de %s de %d",
			t.Format("15:04"), weekdaysES[t.Weekday()], t.Day(), monthsES[t.Month()-1], t.Year())
		if place != "" {
			out += " en " + place
		}
	} else {
		out = "It is " + t.Format("3:04 PM") + " on " + t.Format("Monday, January 2, 2006")
		if place != "" {
			out += " in " + place
		}
	}
	out += fmt.Sprintf(" (%s).", t.Format("MST"))

	return domain.AgentResult{
		Output:     out,
		Confidence: confidenceTime,
		Extra:      map[string]string{"zone": loc.String()},
	}, nil
}

// resolveZone finds an IANA zone or known city in input. It returns the
// default zone and "" when none is named.
func (a *Clock) resolveZone(input string) (*time.Location, string) {
	if m := ianaZoneRe.FindString(input); m != "" {
		if loc, err := time.LoadLocation(m); err == nil {
			return loc, m
		}
	}

	lower := strings.ToLower(input)
	best := ""
	for city := range cityZones {
		if len(city) > len(best) && containsWord(lower, city) {
			best = city
		}
	}
	if best != "" {
		if loc, err := time.LoadLocation(cityZones[best]); err == nil {
			return loc, displayCity(input, best)
		}
	}
	return a.zone, ""
}

// containsWord reports whether phrase occurs in s bounded by non-letters.
func containsWord(s, phrase string) bool {
	for off := 0; ; {
		i := strings.Index(s[off:], phrase)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(phrase)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		off = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}

// displayCity returns the city as the user spelled it.
func displayCity(input, lowerCity string) string {
	i := strings.Index(strings.ToLower(input), lowerCity)
	if i < 0 || i+len(lowerCity) > len(input) {
		return lowerCity
	}
	return input[i : i+len(lowerCity)]
}
