package models

import (
	"fmt"
	"math"
	"time"
)

// WeatherData is one forecast block starting at Time and lasting BlockDuration.
type WeatherData struct {
	Time                     time.Time     `json:"time" example:"2026-06-01T12:00:00Z"`
	BlockDuration            time.Duration `json:"block_duration" swaggertype:"integer" example:"3600000000000"`
	Temperature              float64       `json:"temperature" example:"18.4"`
	WindSpeed                float64       `json:"wind_speed" example:"3.2"`
	WindDirection            float64       `json:"wind_direction" example:"225"`
	Precipitation            float64       `json:"precipitation" example:"0.4"`
	PrecipitationProbability float64       `json:"precipitation_probability" example:"40"`
	ThunderProbability       *float64      `json:"thunder_probability,omitempty" example:"5"`
	Humidity                 float64       `json:"humidity" example:"71"`
	CloudCover               float64       `json:"cloud_cover" example:"55"`
	WeatherCode              WeatherCode   `json:"weather_code" example:"partlycloudy_day"`
}

// End is the exclusive end of the block.
func (w WeatherData) End() time.Time {
	return w.Time.Add(w.BlockDuration)
}

// Thunder returns the thunder probability, zero when the provider gave none.
func (w WeatherData) Thunder() float64 {
	if w.ThunderProbability == nil {
		return 0
	}
	return *w.ThunderProbability
}

// Clamp forces every field into its valid range. NaN values become zero.
func (w *WeatherData) Clamp() {
	w.Time = w.Time.UTC()
	w.Temperature = finite(w.Temperature)
	w.WindSpeed = math.Max(0, finite(w.WindSpeed))
	w.WindDirection = math.Mod(finite(w.WindDirection), 360)
	if w.WindDirection < 0 {
		w.WindDirection += 360
	}
	w.Precipitation = math.Max(0, finite(w.Precipitation))
	w.PrecipitationProbability = percent(w.PrecipitationProbability)
	w.Humidity = percent(w.Humidity)
	w.CloudCover = percent(w.CloudCover)
	if w.ThunderProbability != nil {
		p := percent(*w.ThunderProbability)
		w.ThunderProbability = &p
	}
	if w.WeatherCode == "" {
		w.WeatherCode = Unknown
	}
}

func (w WeatherData) Validate() error {
	switch {
	case w.BlockDuration <= 0:
		return fmt.Errorf("block duration must be positive, got %s", w.BlockDuration)
	case w.WindSpeed < 0:
		return fmt.Errorf("wind speed must not be negative, got %v", w.WindSpeed)
	case w.WindDirection < 0 || w.WindDirection > 360:
		return fmt.Errorf("wind direction out of range: %v", w.WindDirection)
	case w.Precipitation < 0:
		return fmt.Errorf("precipitation must not be negative, got %v", w.Precipitation)
	case !inPercent(w.PrecipitationProbability), !inPercent(w.Humidity), !inPercent(w.CloudCover):
		return fmt.Errorf("percentage field out of range")
	case w.ThunderProbability != nil && !inPercent(*w.ThunderProbability):
		return fmt.Errorf("thunder probability out of range: %v", *w.ThunderProbability)
	}
	return nil
}

// Float is a helper for optional fields.
func Float(v float64) *float64 {
	return &v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func percent(v float64) float64 {
	return math.Min(100, math.Max(0, finite(v)))
}

func inPercent(v float64) bool {
	return v >= 0 && v <= 100
}
