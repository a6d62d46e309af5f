package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"weather-router/config"
	"weather-router/internal/models"
	"weather-router/internal/repositories"
	"weather-router/internal/services/summary"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

// Cache is the durable response store used by the router.
type Cache interface {
	GetResponse(provider string, lat, lon float64, start, end time.Time) (models.CacheEntry, bool, error)
	GetStale(provider string, lat, lon float64, start, end time.Time) (models.CacheEntry, bool, error)
	StoreResponse(entry models.CacheEntry) error
	Entries() ([]models.CacheEntry, error)
	Clear(provider string) error
}

// Options are the optional collaborators of a Router.
type Options struct {
	Regions    []config.RegionConfig
	Fallback   string
	Timezone   *time.Location
	Aggregator *observe.ErrorAggregator
	Metrics    *observe.Metrics
	Clock      clockwork.Clock
}

// Router picks the provider for a location, serves from the cache when it can and falls
// back to the global provider, then to stale entries, when the regional one fails.
type Router struct {
	repos    map[string]repositories.WeatherRepository
	regions  []config.RegionConfig
	fallback string
	tz       *time.Location
	cache    Cache
	errs     *observe.ErrorAggregator
	metrics  *observe.Metrics
	clock    clockwork.Clock
	l        *logger.Logger
}

func NewRouter(repos map[string]repositories.WeatherRepository, cache Cache, l *logger.Logger, opts Options) *Router {
	if opts.Fallback == "" {
		opts.Fallback = repositories.GlobalName
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	if opts.Aggregator == nil {
		opts.Aggregator = observe.NewErrorAggregator(l, opts.Clock, 0, opts.Metrics)
	}

	return &Router{
		repos:    repos,
		regions:  opts.Regions,
		fallback: opts.Fallback,
		tz:       opts.Timezone,
		cache:    cache,
		errs:     opts.Aggregator,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		l:        l,
	}
}

// SelectProvider returns the provider of the first region containing the point, or the
// fallback provider.
func (r *Router) SelectProvider(lat, lon float64) string {
	for _, region := range r.regions {
		if lat < region.LatMin || lat > region.LatMax || lon < region.LonMin || lon > region.LonMax {
			continue
		}
		if _, ok := r.repos[region.Provider]; ok {
			return region.Provider
		}
	}
	return r.fallback
}

// GetWeather returns the forecast for the point and window. The error is non-nil only for
// invalid input; when no provider can serve the request the result is nil.
func (r *Router) GetWeather(ctx context.Context, lat, lon float64, start, end time.Time) (*models.WeatherResponse, error) {
	q := models.Query{Latitude: lat, Longitude: lon, Start: start.UTC(), End: end.UTC()}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	primary := r.SelectProvider(lat, lon)

	r.l.Debug("weather requested", map[string]any{
		"request_id": requestID,
		"provider":   primary,
		"lat":        lat,
		"lon":        lon,
		"start":      q.Start,
		"end":        q.End,
	})

	resp, err := r.fromProvider(ctx, primary, q, requestID)
	if err == nil {
		return resp, nil
	}
	r.recordFailure(primary, err, requestID)

	tried := []string{primary}
	if primary != r.fallback {
		if r.metrics != nil {
			r.metrics.Fallbacks.WithLabelValues(primary, r.fallback).Inc()
		}
		r.l.Info("falling back", map[string]any{
			"request_id": requestID,
			"from":       primary,
			"to":         r.fallback,
		})

		resp, err = r.fromProvider(ctx, r.fallback, q, requestID)
		if err == nil {
			return resp, nil
		}
		r.recordFailure(r.fallback, err, requestID)
		tried = append(tried, r.fallback)
	}

	for _, name := range tried {
		if resp = r.stale(name, q, requestID); resp != nil {
			return resp, nil
		}
	}

	r.l.Warning("no forecast available", map[string]any{
		"request_id": requestID,
		"providers":  tried,
		"lat":        lat,
		"lon":        lon,
	})

	return nil, nil
}

func (r *Router) fromProvider(ctx context.Context, name string, q models.Query, requestID string) (*models.WeatherResponse, error) {
	repo, ok := r.repos[name]
	if !ok {
		return nil, models.NewProviderError(name, models.ErrProviderUnavailable, errors.New("provider not configured"))
	}
	if !repo.CoversLocation(q.Latitude, q.Longitude) {
		return nil, models.NewProviderError(name, models.ErrNoCoverage, fmt.Errorf("%.4f,%.4f not covered", q.Latitude, q.Longitude))
	}

	entry, hit, err := r.cache.GetResponse(name, q.Latitude, q.Longitude, q.Start, q.End)
	if err != nil {
		r.l.Warning("cache read failed", map[string]any{"request_id": requestID, "provider": name, "err": err})
	}
	if hit {
		resp, err := repo.Parse(rawFromEntry(entry), q)
		if err == nil {
			err = r.validate(name, resp)
		}
		if err == nil {
			r.countLookup(name, "hit")
			r.l.Debug("served from cache", map[string]any{
				"request_id": requestID,
				"provider":   name,
				"expires":    entry.Expires,
			})
			return resp, nil
		}
		r.l.Warning("cached payload no longer parses, refetching", map[string]any{
			"request_id": requestID,
			"provider":   name,
			"err":        err,
		})
	}
	r.countLookup(name, "miss")

	raw, err := repo.FetchForecasts(ctx, q)
	if err != nil {
		r.countFetch(name, err)
		return nil, err
	}

	resp, err := repo.Parse(raw, q)
	if err != nil {
		r.countFetch(name, err)
		return nil, err
	}

	now := r.clock.Now()
	if !resp.Expires.After(now) {
		resp.Expires = repo.GetExpiryTime()
	}
	if err = r.validate(name, resp); err != nil {
		r.countFetch(name, err)
		return nil, err
	}
	r.countFetch(name, nil)

	fetched := raw.FetchedAt
	if fetched.IsZero() {
		fetched = now.UTC()
	}

	err = r.cache.StoreResponse(models.CacheEntry{
		Provider:     name,
		Latitude:     q.Latitude,
		Longitude:    q.Longitude,
		WindowStart:  q.Start,
		WindowEnd:    q.End,
		Location:     raw.Location,
		RawResponse:  raw.Body,
		Expires:      resp.Expires,
		LastModified: raw.LastModified,
		FetchedAt:    fetched,
		Created:      now.UTC(),
	})
	if err != nil {
		r.l.Error(err, map[string]any{"request_id": requestID, "provider": name, "op": "store_response"})
	}

	r.l.Info("fetched forecast", map[string]any{
		"request_id": requestID,
		"provider":   name,
		"samples":    len(resp.Samples),
		"expires":    resp.Expires,
	})

	return resp, nil
}

// stale parses the last stored entry for the window whatever its age.
func (r *Router) stale(name string, q models.Query, requestID string) *models.WeatherResponse {
	repo, ok := r.repos[name]
	if !ok {
		return nil
	}

	entry, found, err := r.cache.GetStale(name, q.Latitude, q.Longitude, q.Start, q.End)
	if err != nil || !found {
		return nil
	}

	resp, err := repo.Parse(rawFromEntry(entry), q)
	if err != nil {
		r.l.Warning("stale entry does not parse", map[string]any{"request_id": requestID, "provider": name, "err": err})
		return nil
	}
	resp.Stale = true
	r.countLookup(name, "stale")

	r.l.Warning("serving stale forecast", map[string]any{
		"request_id": requestID,
		"provider":   name,
		"expired":    entry.Expires,
	})

	return resp
}

func (r *Router) recordFailure(name string, err error, requestID string) {
	r.errs.Record(name, err)
	r.l.Debug("provider failed", map[string]any{
		"request_id": requestID,
		"provider":   name,
		"kind":       outcome(err),
		"err":        err,
	})
}

// validate enforces the response invariants on a freshly parsed response.
func (r *Router) validate(name string, resp *models.WeatherResponse) error {
	if err := resp.Validate(r.clock.Now()); err != nil {
		return pkgerrors.WithStack(models.NewProviderError(name, models.ErrInvalidResponse, err))
	}
	return nil
}

func (r *Router) countLookup(provider, result string) {
	if r.metrics != nil {
		r.metrics.CacheLookups.WithLabelValues(provider, result).Inc()
	}
}

func (r *Router) countFetch(provider string, err error) {
	if r.metrics != nil {
		r.metrics.ProviderFetches.WithLabelValues(provider, outcome(err)).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, models.ErrNoCoverage):
		return "no_coverage"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrInvalidResponse):
		return "invalid"
	}
	return "unavailable"
}

func rawFromEntry(e models.CacheEntry) repositories.RawResponse {
	return repositories.RawResponse{
		Body:         e.RawResponse,
		Location:     e.Location,
		Expires:      e.Expires,
		LastModified: e.LastModified,
		FetchedAt:    e.FetchedAt,
	}
}

// Summarize renders resp with the block policy of the provider that served it.
func (r *Router) Summarize(resp *models.WeatherResponse, start, end time.Time) string {
	if resp == nil {
		return ""
	}
	blockSize := func(float64) int { return 1 }
	if repo, ok := r.repos[resp.Provider]; ok {
		blockSize = repo.GetBlockSize
	}
	now := resp.FetchedAt
	if now.IsZero() {
		now = r.clock.Now()
	}
	return summary.NewSummarizer(r.tz, blockSize, r.clock).SummarizeAt(resp.Samples, start, end, now)
}

// GetWeatherSummary is GetWeather followed by Summarize. An empty string means no forecast.
func (r *Router) GetWeatherSummary(ctx context.Context, lat, lon float64, start, end time.Time) (string, error) {
	resp, err := r.GetWeather(ctx, lat, lon, start, end)
	if err != nil {
		return "", err
	}
	return r.Summarize(resp, start, end), nil
}

func (r *Router) CacheEntries() ([]models.CacheEntry, error) {
	entries, err := r.cache.Entries()
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.CacheEntries.Set(float64(len(entries)))
	}
	return entries, nil
}

// ClearCache drops the entries of one provider, or all of them when provider is empty.
func (r *Router) ClearCache(provider string) error {
	if provider != "" {
		if _, ok := r.repos[provider]; !ok {
			return fmt.Errorf("%w: unknown provider %q", models.ErrInvalidInput, provider)
		}
	}

	if err := r.cache.Clear(provider); err != nil {
		return err
	}

	r.l.Info("cache cleared", map[string]any{"provider": provider})
	return nil
}

// Providers lists the configured provider names in order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
