package models

import "time"

// CacheEntry is one stored provider payload. Entries are replaced whole, never mutated.
type CacheEntry struct {
	Provider     string    `json:"provider"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Location     string    `json:"location,omitempty"`
	RawResponse  []byte    `json:"raw_response" swaggertype:"string" format:"base64"`
	Expires      time.Time `json:"expires"`
	LastModified time.Time `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Created      time.Time `json:"created"`
}

// Expired reports whether the entry is no longer fresh at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}
