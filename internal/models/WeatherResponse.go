package models

import (
	"fmt"
	"time"
)

// WeatherResponse is the normalized forecast returned to callers.
type WeatherResponse struct {
	Provider        string        `json:"provider" example:"nordic"`
	Location        string        `json:"location,omitempty" example:"Vantaa"`
	Samples         []WeatherData `json:"samples"`
	ElaborationTime time.Time     `json:"elaboration_time"`
	Expires         time.Time     `json:"expires"`
	FetchedAt       time.Time     `json:"fetched_at"`
	Stale           bool          `json:"stale,omitempty"`
}

// Validate checks the response invariants relative to now. Stale responses skip the expiry check.
func (r *WeatherResponse) Validate(now time.Time) error {
	if len(r.Samples) == 0 {
		return fmt.Errorf("response from %s has no samples", r.Provider)
	}
	for i, s := range r.Samples {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if i > 0 && !s.Time.After(r.Samples[i-1].Time) {
			return fmt.Errorf("samples not in ascending order at %d", i)
		}
	}
	if !r.Stale && !r.Expires.After(now) {
		return fmt.Errorf("response from %s already expired at %s", r.Provider, r.Expires.Format(time.RFC3339))
	}
	return nil
}
