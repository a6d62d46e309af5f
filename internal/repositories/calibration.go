package repositories

import (
	"math"
	"strings"
	"time"
	_ "time/tzdata"

	"weather-router/internal/models"
)

const (
	coolestHour = 6.0
	warmestHour = 15.0
	dayStarts   = 6
	dayEnds     = 21
)

// InterpolateTemperature spreads a daily min/max over the day: the minimum at 06:00 local,
// the maximum at 15:00, half-cosine segments in between.
func InterpolateTemperature(tmin, tmax, localHour float64) float64 {
	h := math.Mod(localHour, 24)
	if h < 0 {
		h += 24
	}
	amplitude := tmax - tmin

	if h >= coolestHour && h <= warmestHour {
		x := (h - coolestHour) / (warmestHour - coolestHour)
		return tmin + amplitude*(1-math.Cos(math.Pi*x))/2
	}

	// Falling from the afternoon peak to the next morning's minimum.
	since := h - warmestHour
	if since < 0 {
		since += 24
	}
	x := since / (24 - warmestHour + coolestHour)
	return tmax - amplitude*(1-math.Cos(math.Pi*x))/2
}

var windClassSpeeds = map[int]float64{
	1: 2.0,
	2: 6.9,
	3: 12.5,
	4: 18.0,
}

// WindClassSpeed converts a wind strength class (1 weak .. 4 very strong) to m/s.
func WindClassSpeed(class int) float64 {
	if v, ok := windClassSpeeds[class]; ok {
		return v
	}
	if class > 4 {
		return windClassSpeeds[4]
	}
	return 0
}

var intensityRates = []float64{0, 0.5, 2.0, 6.0}

// EstimatePrecipitation is the expected amount in mm over hours for a probability in percent
// and an intensity class (0 none .. 3 heavy).
func EstimatePrecipitation(probability float64, intensityClass int, hours float64) float64 {
	if intensityClass < 0 {
		intensityClass = 0
	}
	if intensityClass >= len(intensityRates) {
		intensityClass = len(intensityRates) - 1
	}
	p := math.Min(100, math.Max(0, probability)) / 100
	return round1(intensityRates[intensityClass] * p * hours)
}

var cardinalDegrees = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,
	// Spanish and Portuguese use O for west
	"O": 270, "SO": 225, "NO": 315, "OSO": 247.5, "ONO": 292.5, "SSO": 202.5, "NNO": 337.5,
}

// CardinalToDegrees converts a compass point to degrees. Calm and unknown values give ok=false.
func CardinalToDegrees(s string) (float64, bool) {
	v, ok := cardinalDegrees[strings.ToUpper(strings.TrimSpace(s))]
	return v, ok
}

var cardinals = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// DegreesToCardinal returns the 8-point compass sector of d.
func DegreesToCardinal(d float64) string {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return cardinals[int(math.Round(d/45))%8]
}

// IsDaytime reports whether the local hour falls in [06, 21).
func IsDaytime(localHour int) bool {
	return localHour >= dayStarts && localHour < dayEnds
}

// SolarHour approximates local solar time from longitude.
func SolarHour(t time.Time, lon float64) int {
	h := float64(t.UTC().Hour()) + float64(t.UTC().Minute())/60 + lon/15
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return int(h)
}

// nextScheduled returns the first hour:00 UTC plus delay strictly after now.
func nextScheduled(now time.Time, hoursUTC []int, delay time.Duration) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for d := -1; d <= 1; d++ {
		for _, h := range hoursUTC {
			t := day.AddDate(0, 0, d).Add(time.Duration(h)*time.Hour + delay)
			if t.After(now) {
				return t
			}
		}
	}
	return now.Truncate(time.Hour).Add(time.Hour)
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// expiresOr prefers the expiry recorded with the payload over the provider schedule.
func expiresOr(raw RawResponse, schedule func() time.Time) time.Time {
	if !raw.Expires.IsZero() {
		return raw.Expires
	}
	return schedule()
}

// intensityForCode guesses a precipitation intensity class from a weather code.
func intensityForCode(c models.WeatherCode) int {
	switch c.Severity() {
	case models.SeverityLightRain, models.SeverityLightSnow, models.SeveritySleet:
		return 1
	case models.SeverityRain, models.SeveritySnow, models.SeverityThunder:
		return 2
	case models.SeverityHeavyRain, models.SeverityHeavySnow, models.SeverityThunderstorm:
		return 3
	}
	return 0
}

// thunderFromCode gives thunder codes the precipitation probability and everything else zero.
func thunderFromCode(c models.WeatherCode, precipitationProbability float64) *float64 {
	if c.Severity() >= models.SeverityThunder {
		return models.Float(precipitationProbability)
	}
	return models.Float(0)
}

// cloudFromCode estimates cloud cover in percent for providers that only publish a symbol.
func cloudFromCode(c models.WeatherCode) float64 {
	switch c.Severity() {
	case models.SeverityUnknown:
		return 0
	case models.SeverityClear:
		return 0
	case models.SeverityFair:
		return 20
	case models.SeverityPartlyCloudy:
		return 50
	case models.SeverityCloudy:
		return 90
	}
	return 100
}
