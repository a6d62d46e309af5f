package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-router/internal/models"
	"weather-router/internal/storage"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

func TestPruneCache(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC))
	cache, err := storage.NewResponseCache(t.TempDir(), time.Second, storage.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	start := clock.Now()
	for i, expires := range []time.Duration{-48 * time.Hour, -time.Hour, time.Hour} {
		require.NoError(t, cache.StoreResponse(models.CacheEntry{
			Provider:    "global",
			Latitude:    float64(i),
			WindowStart: start,
			WindowEnd:   start.Add(time.Hour),
			RawResponse: []byte(`{}`),
			Expires:     clock.Now().Add(expires),
		}))
	}

	metrics := observe.NewMetricsForTesting()
	s := New(Config{StaleRetention: 24 * time.Hour}, cache, nil, metrics, logger.NewNop())

	s.PruneCache()

	entries, err := cache.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheEntries))
}

func TestFlushErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	errs := observe.NewErrorAggregator(logger.NewNop(), clock, 0, nil)
	errs.Record("nordic", errors.New("boom"))
	errs.Record("nordic", errors.New("boom"))

	s := New(Config{}, nil, errs, nil, logger.NewNop())
	s.FlushErrors()

	assert.Empty(t, errs.Groups())
}

func TestStartWithoutJobs(t *testing.T) {
	s := New(Config{}, nil, nil, nil, logger.NewNop())

	require.NoError(t, s.Start())
	s.Stop()
}

func TestStartSchedulesJobs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	errs := observe.NewErrorAggregator(logger.NewNop(), clock, 0, nil)
	cache, err := storage.NewResponseCache(t.TempDir(), time.Second, storage.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	s := New(Config{FlushInterval: time.Hour, PruneInterval: time.Hour, StaleRetention: time.Hour}, cache, errs, nil, logger.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.scheduler.Jobs(), 2)
}
