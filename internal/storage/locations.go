package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"weather-router/internal/models"
)

const (
	LocationsFile            = "locations.db"
	DefaultLocationPrecision = 2
	DefaultLocationTTL       = 30 * 24 * time.Hour
)

type locationRecord struct {
	Location models.Location `json:"location"`
	Stored   time.Time       `json:"stored"`
}

// LocationStore persists resolved provider locations keyed by rounded query coordinates.
type LocationStore struct {
	file      *boltFile
	clock     clockwork.Clock
	precision int
	ttl       time.Duration
}

func NewLocationStore(dir string, openTimeout, ttl time.Duration, precision int, clock clockwork.Clock) (*LocationStore, error) {
	file, err := newBoltFile(filepath.Join(dir, LocationsFile), openTimeout)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}

	return &LocationStore{
		file:      file,
		clock:     clock,
		precision: precision,
		ttl:       ttl,
	}, nil
}

// Close releases nothing; the file is only open for the length of a transaction.
func (s *LocationStore) Close() error {
	return nil
}

func (s *LocationStore) key(lat, lon float64) []byte {
	return []byte(formatCoordinate(lat, s.precision) + "|" + formatCoordinate(lon, s.precision))
}

// Get returns the stored location while it is younger than the TTL.
func (s *LocationStore) Get(provider string, lat, lon float64) (models.Location, bool, error) {
	var rec locationRecord
	var found bool

	err := s.file.view(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(provider))
		if b == nil {
			return nil
		}
		v := b.Get(s.key(lat, lon))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return models.Location{}, false, fmt.Errorf("failed to read location: %w", err)
	}
	if !found || s.clock.Now().Sub(rec.Stored) >= s.ttl {
		return models.Location{}, false, nil
	}

	return rec.Location, true, nil
}

func (s *LocationStore) Put(provider string, lat, lon float64, loc models.Location) error {
	data, err := json.Marshal(locationRecord{Location: loc, Stored: s.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}

	return s.file.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(provider))
		if err != nil {
			return err
		}
		return b.Put(s.key(lat, lon), data)
	})
}

// Clear drops the stored locations of provider, or all of them when provider is empty.
func (s *LocationStore) Clear(provider string) error {
	return s.file.update(func(tx *bolt.Tx) error {
		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if provider == "" || string(name) == provider {
				names = append(names, append([]byte(nil), name...))
			}
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
