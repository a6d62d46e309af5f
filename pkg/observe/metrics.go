package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the router.
type Metrics struct {
	// labels: provider, result={hit,miss,stale}
	CacheLookups *prometheus.CounterVec
	// labels: provider, outcome={success,unavailable,rate_limited,invalid,no_coverage}
	ProviderFetches *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	// labels: from, to
	Fallbacks      *prometheus.CounterVec
	RateLimited    *prometheus.CounterVec
	ErrorsRecorded *prometheus.CounterVec
	CacheEntries   prometheus.Gauge
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_router",
			Name:      "cache_lookups_total",
			Help:      help("Response cache lookups by provider and result."),
		}, []string{"provider", "result"}),
		ProviderFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_router",
			Name:      "provider_fetches_total",
			Help:      help("Provider fetches by outcome."),
		}, []string{"provider", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_router",
			Name:      "provider_fetch_duration_seconds",
			Help:      help("Provider fetch duration in seconds, retries included."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_router",
			Name:      "fallbacks_total",
			Help:      help("Requests served by the fallback provider."),
		}, []string{"from", "to"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_router",
			Name:      "rate_limited_total",
			Help:      help("HTTP 429 responses per provider."),
		}, []string{"provider"}),
		ErrorsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_router",
			Name:      "errors_recorded_total",
			Help:      help("Failures handed to the error aggregator."),
		}, []string{"service"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_router",
			Name:      "cache_entries",
			Help:      help("Entries in the response cache after the last prune."),
		}),
	}
}

// NewMetrics creates and registers all collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.CacheLookups,
		m.ProviderFetches,
		m.FetchDuration,
		m.Fallbacks,
		m.RateLimited,
		m.ErrorsRecorded,
		m.CacheEntries,
	)

	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
