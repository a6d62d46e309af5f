package locations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-router/internal/models"
	"weather-router/internal/storage"
	"weather-router/pkg/logger"
)

type mockSource struct {
	name      string
	locations []models.Location
	err       error
	callCount int
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) FetchLocations(ctx context.Context) ([]models.Location, error) {
	m.callCount++
	return m.locations, m.err
}

func portugal() []models.Location {
	return []models.Location{
		{ID: "1010500", Name: "Aveiro", Latitude: 40.6413, Longitude: -8.6535},
		{ID: "1110600", Name: "Lisboa", Latitude: 38.7660, Longitude: -9.1286},
		{ID: "2310300", Name: "Funchal", Latitude: 32.6485, Longitude: -16.9084},
	}
}

func newStore(t *testing.T) *storage.LocationStore {
	t.Helper()
	s, err := storage.NewLocationStore(t.TempDir(), time.Second, 0, storage.DefaultLocationPrecision, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHaversine(t *testing.T) {
	// Helsinki to Madrid is roughly 2950 km
	d := Haversine(60.1699, 24.9384, 40.4168, -3.7038)
	assert.InDelta(t, 2950, d, 30)
	assert.Equal(t, 0.0, Haversine(10, 10, 10, 10))
}

func TestNearest(t *testing.T) {
	assert.Equal(t, "Funchal", Nearest(portugal(), 32.7, -17.0).Name)
	assert.Equal(t, "Lisboa", Nearest(portugal(), 38.9, -9.0).Name)
}

func TestResolver_CachesResolvedLocation(t *testing.T) {
	src := &mockSource{name: "atlantic", locations: portugal()}
	r := NewResolver(newStore(t), time.Hour, logger.NewNop())

	loc, err := r.Resolve(context.Background(), src, 38.72, -9.14)
	require.NoError(t, err)
	assert.Equal(t, "1110600", loc.ID)
	assert.Equal(t, 1, src.callCount)

	loc, err = r.Resolve(context.Background(), src, 38.72, -9.14)
	require.NoError(t, err)
	assert.Equal(t, "Lisboa", loc.Name)
	assert.Equal(t, 1, src.callCount)

	// New coordinates reuse the memoised list
	loc, err = r.Resolve(context.Background(), src, 40.6, -8.6)
	require.NoError(t, err)
	assert.Equal(t, "Aveiro", loc.Name)
	assert.Equal(t, 1, src.callCount)
}

func TestResolver_PersistsAcrossInstances(t *testing.T) {
	store := newStore(t)
	src := &mockSource{name: "atlantic", locations: portugal()}

	_, err := NewResolver(store, time.Hour, logger.NewNop()).Resolve(context.Background(), src, 32.65, -16.9)
	require.NoError(t, err)

	loc, err := NewResolver(store, time.Hour, logger.NewNop()).Resolve(context.Background(), src, 32.65, -16.9)
	require.NoError(t, err)
	assert.Equal(t, "Funchal", loc.Name)
	assert.Equal(t, 1, src.callCount)
}

func TestResolver_EmptyListIsProviderUnavailable(t *testing.T) {
	r := NewResolver(newStore(t), time.Hour, logger.NewNop())

	_, err := r.Resolve(context.Background(), &mockSource{name: "iberian"}, 40.4, -3.7)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestResolver_FetchError(t *testing.T) {
	r := NewResolver(newStore(t), time.Hour, logger.NewNop())
	cause := models.NewProviderError("iberian", models.ErrProviderUnavailable, errors.New("timeout"))

	_, err := r.Resolve(context.Background(), &mockSource{name: "iberian", err: cause}, 40.4, -3.7)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
