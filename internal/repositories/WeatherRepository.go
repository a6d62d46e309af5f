package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/config"
	"weather-router/internal/locations"
	"weather-router/internal/models"
	"weather-router/internal/ratelimit"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

// WeatherRepository adapts one forecast provider to the normalized model.
type WeatherRepository interface {
	Name() string
	// GetBlockSize returns the sample spacing in hours for a lead time; non-decreasing.
	GetBlockSize(hoursAhead float64) int
	// GetExpiryTime is the next time the provider publishes new data; always after now.
	GetExpiryTime() time.Time
	CoversLocation(lat, lon float64) bool
	FetchForecasts(ctx context.Context, q models.Query) (RawResponse, error)
	// Parse is deterministic for a given raw payload and clock.
	Parse(raw RawResponse, q models.Query) (*models.WeatherResponse, error)
}

// RawResponse is the provider payload as stored in the response cache. FetchedAt anchors
// the block grid, so a cached payload parses to the same samples for its whole lifetime.
type RawResponse struct {
	Body         []byte
	Location     string
	Expires      time.Time
	LastModified time.Time
	FetchedAt    time.Time
}

func fetchedAt(raw RawResponse, clock clockwork.Clock) time.Time {
	if raw.FetchedAt.IsZero() {
		return clock.Now().UTC()
	}
	return raw.FetchedAt.UTC()
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Deps are the collaborators shared by all repositories.
type Deps struct {
	Client    HTTPClient
	Limiter   *ratelimit.Limiter
	Resolver  *locations.Resolver
	Clock     clockwork.Clock
	Logger    *logger.Logger
	Metrics   *observe.Metrics
	UserAgent string
}

func (d Deps) withDefaults() Deps {
	if d.Client == nil {
		d.Client = &http.Client{}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(d.Clock, ratelimit.DefaultCeiling, nil)
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return d
}

// Settings configure one provider.
type Settings struct {
	Name           string
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MinInterval    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func SettingsFromConfig(api config.WeatherAPIConfig) Settings {
	return Settings{
		Name:        api.Name,
		BaseURL:     api.BaseURL,
		APIKey:      api.APIKey,
		Timeout:     time.Duration(api.Timeout) * time.Second,
		MinInterval: api.MinInterval,
		MaxRetries:  api.MaxRetries,
	}
}

// InitWeatherRepositories builds the configured providers keyed by name. The global
// provider is always present.
func InitWeatherRepositories(cfg *config.Config, deps Deps) map[string]WeatherRepository {
	deps = deps.withDefaults()
	if deps.UserAgent == "" {
		deps.UserAgent = cfg.Weather.UserAgent
	}

	repos := make(map[string]WeatherRepository)
	for _, api := range cfg.Weather.APIs {
		s := SettingsFromConfig(api)
		switch api.Name {
		case NordicName:
			repos[api.Name] = NewNordicRepository(s, deps)
		case IberianName:
			if api.APIKey == "" {
				deps.Logger.Warning("iberian provider has no API key", map[string]any{"provider": api.Name})
			}
			repos[api.Name] = NewIberianRepository(s, deps)
		case AtlanticName:
			repos[api.Name] = NewAtlanticRepository(s, deps)
		case GlobalName:
			repos[api.Name] = NewGlobalRepository(s, deps)
		default:
			deps.Logger.Warning("unknown weather provider in config", map[string]any{"provider": api.Name})
		}
	}

	if _, ok := repos[GlobalName]; !ok {
		repos[GlobalName] = NewGlobalRepository(Settings{Name: GlobalName}, deps)
	}

	for _, region := range cfg.Weather.Regions {
		if _, ok := repos[region.Provider]; !ok {
			deps.Logger.Warning("region provider not configured, requests fall back", map[string]any{
				"region":   region.Name,
				"provider": region.Provider,
				"fallback": cfg.Weather.Fallback,
			})
		}
	}

	return repos
}
