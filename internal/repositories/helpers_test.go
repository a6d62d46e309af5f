package repositories

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"weather-router/internal/locations"
	"weather-router/internal/models"
	"weather-router/internal/ratelimit"
	"weather-router/internal/storage"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

var testNow = time.Date(2024, 6, 10, 8, 30, 0, 0, time.UTC)

// testDeps returns dependencies with no rate limit floor so consecutive calls never wait.
func testDeps(t *testing.T, clock clockwork.Clock) Deps {
	t.Helper()

	store, err := storage.NewLocationStore(t.TempDir(), time.Second, storage.DefaultLocationTTL, storage.DefaultLocationPrecision, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l := logger.NewNop()
	return Deps{
		Client: http.DefaultClient,
		Limiter: ratelimit.New(clock, time.Millisecond, map[string]time.Duration{
			NordicName:   0,
			IberianName:  0,
			AtlanticName: 0,
			GlobalName:   0,
			"test":       0,
		}),
		Resolver:  locations.NewResolver(store, time.Hour, l),
		Clock:     clock,
		Logger:    l,
		Metrics:   observe.NewMetricsForTesting(),
		UserAgent: "weather-router-test/1.0",
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func query(lat, lon float64, start, end time.Time) models.Query {
	return models.Query{Latitude: lat, Longitude: lon, Start: start, End: end}
}
