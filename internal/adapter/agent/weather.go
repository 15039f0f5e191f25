package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
)

const (
	defaultWeatherURL     = "https://api.openweathermap.org/data/2.5"
	defaultWeatherTimeout = 10 * time.Second
	maxWeatherBody        = 64 * 1024
)

// Prepositions that introduce a place in English and Spanish queries.
var placePrepositions = map[string]bool{"in": true, "at": true, "for": true, "en": true, "para": true}

// Words that end a place name.
var placeStops = map[string]bool{
	"today": true, "tomorrow": true, "now": true, "tonight": true, "this": true, "please": true,
	"hoy": true, "mañana": true, "ahora": true, "esta": true, "este": true, "por": true,
	"in": true, "at": true, "for": true, "en": true, "para": true,
	"celsius": true, "fahrenheit": true, "grados": true,
}

var leadingArticles = map[string]bool{"the": true, "el": true, "la": true}

// ExtractCity returns the place named by an English or Spanish weather
// query, or "" when none is found. When several places are introduced the
// last one wins ("for today in Paris" gives Paris).
func ExtractCity(query string) string {
	tokens := strings.Fields(query)
	city := ""
	for i, tok := range tokens {
		if !placePrepositions[strings.ToLower(strings.Trim(tok, "¿¡"))] {
			continue
		}
		var words []string
		for _, next := range tokens[i+1:] {
			word := strings.Trim(next, "¿¡?!.,;:\"'()")
			if word == "" || placeStops[strings.ToLower(word)] {
				break
			}
			if len(words) == 0 && leadingArticles[strings.ToLower(word)] {
				continue
			}
			words = append(words, word)
			if strings.ContainsAny(next, "?!.,;:") {
				break
			}
		}
		if len(words) > 0 {
			city = strings.Join(words, " ")
		}
	}
	return city
}

// Weather reports current conditions from the OpenWeatherMap API. It is
// registered under both open_weather_map and weather.
type Weather struct {
	name    string
	apiKey  string
	baseURL string
	units   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domain.Agent = (*Weather)(nil)

// NewWeather creates a weather agent registered under name.
func NewWeather(name string, cfg config.WeatherConfig, logger *slog.Logger) *Weather {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultWeatherURL
	}
	units := cfg.Units
	if units == "" {
		units = "metric"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWeatherTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Weather{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		units:   units,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  orDiscard(logger),
	}
}

// NewWeatherAgents returns the open_weather_map agent and its weather alias,
// sharing one rate limiter.
func NewWeatherAgents(cfg config.WeatherConfig, logger *slog.Logger) []domain.Agent {
	primary := NewWeather(domain.AgentOpenWeatherMap, cfg, logger)
	alias := *primary
	alias.name = domain.AgentWeather
	return []domain.Agent{primary, &alias}
}

func (a *Weather) Name() string { return a.name }

func (a *Weather) Description() string {
	return "Current weather conditions for a named city."
}

type owmResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (a *Weather) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	lang := language(ac, input)
	city := ExtractCity(input)
	if city == "" {
		return domain.AgentResult{
			Output: localized(lang,
				"Which city would you like the weather for?",
				"¿De qué ciudad quieres saber el clima?"),
			Confidence: confidenceNeedsCity,
		}, nil
	}
	if a.apiKey == "" {
		return fail(a.logger, domain.NewDomainError("Weather.Handle", domain.ErrAuthInvalid, "no OpenWeatherMap API key"), ac, a.name)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fail(a.logger, fmt.Errorf("%w: %w", domain.ErrRateLimit, err), ac, a.name)
	}

	w, err := a.fetch(ctx, city, lang)
	if err != nil {
		return fail(a.logger, err, ac, a.name)
	}
	return domain.AgentResult{
		Output:     a.describe(w, lang),
		Confidence: confidenceWeather,
		Extra:      map[string]string{"city": w.Name},
	}, nil
}

func (a *Weather) fetch(ctx context.Context, city, lang string) (*owmResponse, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", a.apiKey)
	q.Set("units", a.units)
	q.Set("lang", lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: weather request: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewDomainError("Weather.fetch", domain.ErrNotFound, "city "+city)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.NewDomainError("Weather.fetch", domain.ErrAuthInvalid, "OpenWeatherMap rejected the API key")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: OpenWeatherMap HTTP %d", domain.ErrUpstream, resp.StatusCode)
	}

	var w owmResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: parse weather: %w", domain.ErrProviderError, err)
	}
	if w.Name == "" {
		w.Name = city
	}
	return &w, nil
}

func (a *Weather) describe(w *owmResponse, lang string) string {
	unit := "°C"
	speed := "m/s"
	switch a.units {
	case "imperial":
		unit, speed = "°F", "mph"
	case "standard":
		unit = "K"
	}

	place := w.Name
	if w.Sys.Country != "" {
		place += ", " + w.Sys.Country
	}
	desc := ""
	if len(w.Weather) > 0 {
		desc = w.Weather[0].Description
	}
	temp := math.Round(w.Main.Temp)
	feels := math.Round(w.Main.FeelsLike)

	if lang == "es" {
		return fmt.Sprintf("En %s: %s, %.0f%s (sensación térmica %.0f%s), humedad %d%%, viento %.1f %s.",
			place, desc, temp, unit, feels, unit, w.Main.Humidity, w.Wind.Speed, speed)
	}
	return fmt.Sprintf("In %s: %s, %.0f%s (feels like %.0f%s), humidity %d%%, wind %.1f %s.",
		place, desc, temp, unit, feels, unit, w.Main.Humidity, w.Wind.Speed, speed)
}
