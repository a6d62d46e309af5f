package weather

import (
	"time"

	"weather-router/internal/models"
)

// NoCache stores nothing. It stands in for the response cache when the cache file cannot
// be opened, so every request goes to the providers.
type NoCache struct{}

func (NoCache) GetResponse(string, float64, float64, time.Time, time.Time) (models.CacheEntry, bool, error) {
	return models.CacheEntry{}, false, nil
}

func (NoCache) GetStale(string, float64, float64, time.Time, time.Time) (models.CacheEntry, bool, error) {
	return models.CacheEntry{}, false, nil
}

func (NoCache) StoreResponse(models.CacheEntry) error { return nil }

func (NoCache) Entries() ([]models.CacheEntry, error) { return nil, nil }

func (NoCache) Clear(string) error { return nil }
