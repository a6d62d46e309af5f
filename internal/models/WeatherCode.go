package models

import "strings"

// WeatherCode is the normalized condition symbol. Day/night pairs carry a _day or _night suffix.
type WeatherCode string

const (
	Unknown WeatherCode = "unknown"

	ClearSkyDay        WeatherCode = "clearsky_day"
	ClearSkyNight      WeatherCode = "clearsky_night"
	FairDay            WeatherCode = "fair_day"
	FairNight          WeatherCode = "fair_night"
	PartlyCloudyDay    WeatherCode = "partlycloudy_day"
	PartlyCloudyNight  WeatherCode = "partlycloudy_night"
	Cloudy             WeatherCode = "cloudy"
	Fog                WeatherCode = "fog"
	LightRain          WeatherCode = "lightrain"
	Rain               WeatherCode = "rain"
	HeavyRain          WeatherCode = "heavyrain"
	LightRainShowers   WeatherCode = "lightrainshowers_day"
	LightRainShowersN  WeatherCode = "lightrainshowers_night"
	RainShowers        WeatherCode = "rainshowers_day"
	RainShowersN       WeatherCode = "rainshowers_night"
	HeavyRainShowers   WeatherCode = "heavyrainshowers_day"
	HeavyRainShowersN  WeatherCode = "heavyrainshowers_night"
	LightSnow          WeatherCode = "lightsnow"
	Snow               WeatherCode = "snow"
	HeavySnow          WeatherCode = "heavysnow"
	LightSnowShowers   WeatherCode = "lightsnowshowers_day"
	LightSnowShowersN  WeatherCode = "lightsnowshowers_night"
	SnowShowers        WeatherCode = "snowshowers_day"
	SnowShowersN       WeatherCode = "snowshowers_night"
	HeavySnowShowers   WeatherCode = "heavysnowshowers_day"
	HeavySnowShowersN  WeatherCode = "heavysnowshowers_night"
	Sleet              WeatherCode = "sleet"
	SleetShowers       WeatherCode = "sleetshowers_day"
	SleetShowersN      WeatherCode = "sleetshowers_night"
	LightRainThunder   WeatherCode = "lightrainandthunder"
	RainThunder        WeatherCode = "rainandthunder"
	RainShowersThunder WeatherCode = "rainshowersandthunder_day"
	RainShowersThundN  WeatherCode = "rainshowersandthunder_night"
	SnowThunder        WeatherCode = "snowandthunder"
	SleetThunder       WeatherCode = "sleetandthunder"
	HeavyRainThunder   WeatherCode = "heavyrainandthunder"
	HeavyShowersThund  WeatherCode = "heavyrainshowersandthunder_day"
	HeavyShowersThundN WeatherCode = "heavyrainshowersandthunder_night"
	HeavySnowThunder   WeatherCode = "heavysnowandthunder"
)

// Severity categories, least to most severe.
const (
	SeverityUnknown = iota - 1
	SeverityClear
	SeverityFair
	SeverityPartlyCloudy
	SeverityCloudy
	SeverityFog
	SeverityLightRain
	SeverityRain
	SeverityHeavyRain
	SeverityLightSnow
	SeveritySnow
	SeverityHeavySnow
	SeveritySleet
	SeverityThunder
	SeverityThunderstorm
)

var severities = map[string]int{
	"clearsky":                   SeverityClear,
	"fair":                       SeverityFair,
	"partlycloudy":               SeverityPartlyCloudy,
	"cloudy":                     SeverityCloudy,
	"fog":                        SeverityFog,
	"lightrain":                  SeverityLightRain,
	"lightrainshowers":           SeverityLightRain,
	"rain":                       SeverityRain,
	"rainshowers":                SeverityRain,
	"heavyrain":                  SeverityHeavyRain,
	"heavyrainshowers":           SeverityHeavyRain,
	"lightsnow":                  SeverityLightSnow,
	"lightsnowshowers":           SeverityLightSnow,
	"snow":                       SeveritySnow,
	"snowshowers":                SeveritySnow,
	"heavysnow":                  SeverityHeavySnow,
	"heavysnowshowers":           SeverityHeavySnow,
	"sleet":                      SeveritySleet,
	"sleetshowers":               SeveritySleet,
	"lightrainandthunder":        SeverityThunder,
	"rainandthunder":             SeverityThunder,
	"rainshowersandthunder":      SeverityThunder,
	"snowandthunder":             SeverityThunder,
	"sleetandthunder":            SeverityThunder,
	"heavyrainandthunder":        SeverityThunderstorm,
	"heavyrainshowersandthunder": SeverityThunderstorm,
	"heavysnowandthunder":        SeverityThunderstorm,
}

// variants lists the bases that exist in day and night form.
var variants = map[string]bool{
	"clearsky":                   true,
	"fair":                       true,
	"partlycloudy":               true,
	"lightrainshowers":           true,
	"rainshowers":                true,
	"heavyrainshowers":           true,
	"lightsnowshowers":           true,
	"snowshowers":                true,
	"heavysnowshowers":           true,
	"sleetshowers":               true,
	"rainshowersandthunder":      true,
	"heavyrainshowersandthunder": true,
}

var emojis = map[int]string{
	SeverityUnknown:      "❔",
	SeverityClear:        "☀️",
	SeverityFair:         "🌤️",
	SeverityPartlyCloudy: "⛅",
	SeverityCloudy:       "☁️",
	SeverityFog:          "🌫️",
	SeverityLightRain:    "🌦️",
	SeverityRain:         "🌧️",
	SeverityHeavyRain:    "🌧️",
	SeverityLightSnow:    "🌨️",
	SeveritySnow:         "🌨️",
	SeverityHeavySnow:    "❄️",
	SeveritySleet:        "🌨️",
	SeverityThunder:      "⛈️",
	SeverityThunderstorm: "⛈️",
}

// Base strips the day/night suffix.
func (c WeatherCode) Base() string {
	s := string(c)
	s = strings.TrimSuffix(s, "_day")
	s = strings.TrimSuffix(s, "_night")
	s = strings.TrimSuffix(s, "_polartwilight")
	return s
}

// Valid reports whether c belongs to the closed code set.
func (c WeatherCode) Valid() bool {
	if c == Unknown {
		return true
	}
	base := c.Base()
	if _, ok := severities[base]; !ok {
		return false
	}
	if variants[base] {
		return string(c) != base
	}
	return string(c) == base
}

// Severity ranks the code's category; unknown ranks below clear sky.
func (c WeatherCode) Severity() int {
	if s, ok := severities[c.Base()]; ok {
		return s
	}
	return SeverityUnknown
}

// IsNight reports whether c is a night variant.
func (c WeatherCode) IsNight() bool {
	return strings.HasSuffix(string(c), "_night")
}

// WithDaylight returns the day or night variant; codes without variants are returned unchanged.
func (c WeatherCode) WithDaylight(isDay bool) WeatherCode {
	base := c.Base()
	if !variants[base] {
		if _, ok := severities[base]; ok {
			return WeatherCode(base)
		}
		return Unknown
	}
	if isDay {
		return WeatherCode(base + "_day")
	}
	return WeatherCode(base + "_night")
}

func (c WeatherCode) Emoji() string {
	if c.Severity() == SeverityClear && c.IsNight() {
		return "🌙"
	}
	return emojis[c.Severity()]
}

// ParseWeatherCode maps a symbol such as "partlycloudy_polartwilight" into the closed set.
func ParseWeatherCode(symbol string, isDay bool) WeatherCode {
	return WeatherCode(strings.ToLower(strings.TrimSpace(symbol))).WithDaylight(isDay)
}

// MostSevere returns the highest ranked code; ties keep the earliest.
func MostSevere(codes ...WeatherCode) WeatherCode {
	best := Unknown
	for i, c := range codes {
		if i == 0 || c.Severity() > best.Severity() {
			best = c
		}
	}
	return best
}
