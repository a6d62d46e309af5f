package storage

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultOpenTimeout = 5 * time.Second

// boltFile opens the database for the duration of one transaction only, so the file lock is
// never held between requests. Readers take the shared lock and writers the exclusive one;
// timeout bounds how long either waits for it.
type boltFile struct {
	path    string
	timeout time.Duration
	mu      sync.RWMutex
}

// newBoltFile creates the file and its directory if needed.
func newBoltFile(path string, timeout time.Duration) (*boltFile, error) {
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	f := &boltFile{path: path, timeout: timeout}
	if err := f.update(func(*bolt.Tx) error { return nil }); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *boltFile) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(f.path, 0o600, &bolt.Options{Timeout: f.timeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	return db, nil
}

func (f *boltFile) view(fn func(*bolt.Tx) error) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	db, err := f.open(true)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(fn)
}

func (f *boltFile) update(fn func(*bolt.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	db, err := f.open(false)
	if err != nil {
		return err
	}

	if err := db.Update(fn); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

// RoundCoordinate rounds v to the given number of decimal places.
func RoundCoordinate(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

func formatCoordinate(v float64, precision int) string {
	return strconv.FormatFloat(RoundCoordinate(v, precision), 'f', precision, 64)
}
