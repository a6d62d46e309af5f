package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Query is a forecast request for a point and a half-open time window.
type Query struct {
	Latitude  float64   `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"lon" validate:"gte=-180,lte=180"`
	Start     time.Time `json:"start" validate:"required"`
	End       time.Time `json:"end" validate:"required"`
}

// Validate returns an error wrapping ErrInvalidInput when the query cannot be served.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !q.Start.Before(q.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidInput,
			q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	return nil
}

// HoursAhead is the lead time of t relative to now in fractional hours.
func HoursAhead(now, t time.Time) float64 {
	return t.Sub(now).Hours()
}
