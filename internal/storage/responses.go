package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"weather-router/internal/models"
)

const (
	ResponsesFile              = "responses.db"
	DefaultCoordinatePrecision = 4
)

// ResponseCache is the durable store of raw provider payloads keyed by provider,
// rounded coordinates and time window. One bucket per provider.
type ResponseCache struct {
	file      *boltFile
	clock     clockwork.Clock
	precision int
}

type ResponseCacheOption func(*ResponseCache)

func WithClock(clock clockwork.Clock) ResponseCacheOption {
	return func(c *ResponseCache) {
		c.clock = clock
	}
}

func WithPrecision(precision int) ResponseCacheOption {
	return func(c *ResponseCache) {
		c.precision = precision
	}
}

func NewResponseCache(dir string, openTimeout time.Duration, opts ...ResponseCacheOption) (*ResponseCache, error) {
	file, err := newBoltFile(filepath.Join(dir, ResponsesFile), openTimeout)
	if err != nil {
		return nil, err
	}

	c := &ResponseCache{
		file:      file,
		clock:     clockwork.NewRealClock(),
		precision: DefaultCoordinatePrecision,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close releases nothing; the file is only open for the length of a transaction.
func (c *ResponseCache) Close() error {
	return nil
}

func (c *ResponseCache) key(lat, lon float64, start, end time.Time) []byte {
	return []byte(strings.Join([]string{
		formatCoordinate(lat, c.precision),
		formatCoordinate(lon, c.precision),
		strconv.FormatInt(start.Unix(), 10),
		strconv.FormatInt(end.Unix(), 10),
	}, "|"))
}

func (c *ResponseCache) load(provider string, lat, lon float64, start, end time.Time) (models.CacheEntry, bool, error) {
	var entry models.CacheEntry
	var found bool

	err := c.file.view(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(provider))
		if b == nil {
			return nil
		}
		v := b.Get(c.key(lat, lon, start, end))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	return entry, found, nil
}

// GetResponse returns the entry only while it is fresh.
func (c *ResponseCache) GetResponse(provider string, lat, lon float64, start, end time.Time) (models.CacheEntry, bool, error) {
	entry, found, err := c.load(provider, lat, lon, start, end)
	if err != nil || !found {
		return models.CacheEntry{}, false, err
	}
	if entry.Expired(c.clock.Now()) {
		return models.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// GetStale returns the entry regardless of expiry.
func (c *ResponseCache) GetStale(provider string, lat, lon float64, start, end time.Time) (models.CacheEntry, bool, error) {
	return c.load(provider, lat, lon, start, end)
}

// StoreResponse upserts the entry for the key in one transaction.
func (c *ResponseCache) StoreResponse(entry models.CacheEntry) error {
	if entry.Provider == "" {
		return fmt.Errorf("cache entry has no provider")
	}

	entry.Latitude = RoundCoordinate(entry.Latitude, c.precision)
	entry.Longitude = RoundCoordinate(entry.Longitude, c.precision)
	entry.WindowStart = entry.WindowStart.UTC()
	entry.WindowEnd = entry.WindowEnd.UTC()
	if entry.Created.IsZero() {
		entry.Created = c.clock.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return c.file.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(entry.Provider))
		if err != nil {
			return err
		}
		return b.Put(c.key(entry.Latitude, entry.Longitude, entry.WindowStart, entry.WindowEnd), data)
	})
}

// Clear removes every entry of provider, or everything when provider is empty.
func (c *ResponseCache) Clear(provider string) error {
	return c.file.update(func(tx *bolt.Tx) error {
		if provider != "" {
			if tx.Bucket([]byte(provider)) == nil {
				return nil
			}
			return tx.DeleteBucket([]byte(provider))
		}

		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Entries lists every stored entry ordered by provider and key.
func (c *ResponseCache) Entries() ([]models.CacheEntry, error) {
	var entries []models.CacheEntry

	err := c.file.view(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			return b.ForEach(func(_, v []byte) error {
				var entry models.CacheEntry
				if err := json.Unmarshal(v, &entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	return entries, nil
}

// Prune drops entries that expired more than retention ago and returns how many were removed.
func (c *ResponseCache) Prune(retention time.Duration) (int, error) {
	cutoff := c.clock.Now().Add(-retention)
	removed := 0

	err := c.file.update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			var stale [][]byte
			if err := b.ForEach(func(k, v []byte) error {
				var entry models.CacheEntry
				if err := json.Unmarshal(v, &entry); err != nil || entry.Expires.Before(cutoff) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			}); err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			removed += len(stale)
			return nil
		})
	})

	return removed, err
}
