package locations

import (
	"context"
	"fmt"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"weather-router/internal/models"
	"weather-router/pkg/logger"
)

const (
	earthRadiusKm   = 6371.0
	defaultListTTL  = 24 * time.Hour
	listCleanupTick = time.Hour
)

// LocationSource is a provider that publishes a list of forecast locations.
type LocationSource interface {
	Name() string
	FetchLocations(ctx context.Context) ([]models.Location, error)
}

// Store persists resolved locations per provider.
type Store interface {
	Get(provider string, lat, lon float64) (models.Location, bool, error)
	Put(provider string, lat, lon float64, loc models.Location) error
}

// Resolver maps coordinates to the nearest provider location. Results are persisted in the
// store; provider lists are memoised in process.
type Resolver struct {
	store Store
	lists *gocache.Cache
	l     *logger.Logger
}

func NewResolver(store Store, listTTL time.Duration, l *logger.Logger) *Resolver {
	if listTTL <= 0 {
		listTTL = defaultListTTL
	}
	if store == nil {
		store = noStore{}
	}
	return &Resolver{
		store: store,
		lists: gocache.New(listTTL, listCleanupTick),
		l:     l,
	}
}

// noStore remembers nothing; every lookup goes to the provider's location list.
type noStore struct{}

func (noStore) Get(string, float64, float64) (models.Location, bool, error) {
	return models.Location{}, false, nil
}

func (noStore) Put(string, float64, float64, models.Location) error { return nil }

func (r *Resolver) Resolve(ctx context.Context, src LocationSource, lat, lon float64) (models.Location, error) {
	provider := src.Name()

	loc, ok, err := r.store.Get(provider, lat, lon)
	if err != nil {
		r.l.Warning("location store read failed", map[string]any{"provider": provider, "err": err})
	}
	if ok {
		return loc, nil
	}

	list, err := r.list(ctx, src)
	if err != nil {
		return models.Location{}, err
	}

	loc = Nearest(list, lat, lon)

	if err = r.store.Put(provider, lat, lon, loc); err != nil {
		r.l.Warning("location store write failed", map[string]any{"provider": provider, "err": err})
	}

	r.l.Debug("resolved location", map[string]any{
		"provider": provider,
		"lat":      lat,
		"lon":      lon,
		"location": loc.Name,
		"id":       loc.ID,
	})

	return loc, nil
}

func (r *Resolver) list(ctx context.Context, src LocationSource) ([]models.Location, error) {
	if v, ok := r.lists.Get(src.Name()); ok {
		return v.([]models.Location), nil
	}

	list, err := src.FetchLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s locations: %w", src.Name(), err)
	}
	if len(list) == 0 {
		return nil, models.NewProviderError(src.Name(), models.ErrProviderUnavailable, fmt.Errorf("empty location list"))
	}

	r.lists.SetDefault(src.Name(), list)
	return list, nil
}

// Nearest returns the candidate with the smallest great-circle distance; the first wins ties.
func Nearest(candidates []models.Location, lat, lon float64) models.Location {
	best := candidates[0]
	bestDist := Haversine(lat, lon, best.Latitude, best.Longitude)
	for _, c := range candidates[1:] {
		if d := Haversine(lat, lon, c.Latitude, c.Longitude); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
