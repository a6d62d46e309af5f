package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/internal/locations"
	"weather-router/internal/models"
	"weather-router/pkg/logger"
)

const (
	AtlanticName     = "atlantic"
	AtlanticBaseURL  = "https://api.ipma.pt/open-data"
	atlanticHorizon  = 5 * 24 * time.Hour
	ipmaDateLayout   = "2006-01-02"
	ipmaUpdateLayout = "2006-01-02T15:04:05"
)

var (
	atlanticBlocks = BlockTable{{UpTo: 48, Hours: 1}, {UpTo: 120, Hours: 6}, {UpTo: math.Inf(1), Hours: 24}}
	atlanticRuns   = []int{9, 21}
)

// ipmaWeatherTypes maps idWeatherType onto normalized codes. 0 means no information.
var ipmaWeatherTypes = map[int]models.WeatherCode{
	1:  models.ClearSkyDay,
	2:  models.FairDay,
	3:  models.PartlyCloudyDay,
	4:  models.Cloudy,
	5:  models.PartlyCloudyDay,
	6:  models.RainShowers,
	7:  models.LightRainShowers,
	8:  models.HeavyRainShowers,
	9:  models.Rain,
	10: models.LightRain,
	11: models.HeavyRain,
	12: models.Rain,
	13: models.LightRain,
	14: models.HeavyRain,
	15: models.LightRain,
	16: models.Fog,
	17: models.Fog,
	18: models.Snow,
	19: models.RainThunder,
	20: models.RainShowersThunder,
	21: models.HeavyRainShowers,
	22: models.ClearSkyDay,
	23: models.RainThunder,
	24: models.Cloudy,
	25: models.PartlyCloudyDay,
	26: models.Fog,
	27: models.Cloudy,
	28: models.SnowShowers,
	29: models.Sleet,
	30: models.Sleet,
}

type box struct {
	latMin, latMax, lonMin, lonMax float64
}

func (b box) contains(lat, lon float64) bool {
	return lat >= b.latMin && lat <= b.latMax && lon >= b.lonMin && lon <= b.lonMax
}

var (
	mainlandBox = box{36.9, 42.2, -9.6, -6.2}
	madeiraBox  = box{32.3, 33.2, -17.4, -16.2}
	azoresBox   = box{36.8, 39.8, -31.5, -24.9}
)

// AtlanticRepository reads IPMA daily forecasts for the nearest district capital or island.
type AtlanticRepository struct {
	baseURL  string
	fetch    *fetcher
	clock    clockwork.Clock
	resolver *locations.Resolver
	l        *logger.Logger
}

func NewAtlanticRepository(s Settings, deps Deps) *AtlanticRepository {
	deps = deps.withDefaults()
	if s.Name == "" {
		s.Name = AtlanticName
	}
	if s.BaseURL == "" {
		s.BaseURL = AtlanticBaseURL
	}

	return &AtlanticRepository{
		baseURL:  strings.TrimSuffix(s.BaseURL, "/"),
		fetch:    newFetcher(s, deps, map[string]string{"Accept": "application/json"}),
		clock:    deps.Clock,
		resolver: deps.Resolver,
		l:        deps.Logger,
	}
}

func (a *AtlanticRepository) Name() string {
	return AtlanticName
}

func (a *AtlanticRepository) GetBlockSize(hoursAhead float64) int {
	return atlanticBlocks.Size(hoursAhead)
}

func (a *AtlanticRepository) GetExpiryTime() time.Time {
	return nextScheduled(a.clock.Now(), atlanticRuns, 0)
}

// CoversLocation is mainland Portugal, Madeira and the Azores.
func (a *AtlanticRepository) CoversLocation(lat, lon float64) bool {
	return mainlandBox.contains(lat, lon) || madeiraBox.contains(lat, lon) || azoresBox.contains(lat, lon)
}

func (a *AtlanticRepository) zone(lat, lon float64) *time.Location {
	switch {
	case azoresBox.contains(lat, lon):
		return loadLocation("Atlantic/Azores")
	case madeiraBox.contains(lat, lon):
		return loadLocation("Atlantic/Madeira")
	}
	return loadLocation("Europe/Lisbon")
}

type ipmaLocation struct {
	GlobalIDLocal int       `json:"globalIdLocal"`
	Local         string    `json:"local"`
	Latitude      flexFloat `json:"latitude"`
	Longitude     flexFloat `json:"longitude"`
	IDRegiao      int       `json:"idRegiao"`
}

type ipmaLocations struct {
	Data []ipmaLocation `json:"data"`
}

func (a *AtlanticRepository) FetchLocations(ctx context.Context) ([]models.Location, error) {
	res, err := a.fetch.get(ctx, a.baseURL+"/distrits-islands.json")
	if err != nil {
		return nil, err
	}

	var list ipmaLocations
	if err = json.Unmarshal(res.Body, &list); err != nil {
		e := models.NewProviderError(AtlanticName, models.ErrInvalidResponse, fmt.Errorf("failed to parse locations: %w", err))
		return nil, e.WithExcerpt(res.Body)
	}

	out := make([]models.Location, 0, len(list.Data))
	for _, l := range list.Data {
		if !l.Latitude.Valid || !l.Longitude.Valid {
			continue
		}
		out = append(out, models.Location{
			ID:        strconv.Itoa(l.GlobalIDLocal),
			Name:      l.Local,
			Latitude:  l.Latitude.Value,
			Longitude: l.Longitude.Value,
			Region:    "PT",
		})
	}

	return out, nil
}

func (a *AtlanticRepository) FetchForecasts(ctx context.Context, q models.Query) (RawResponse, error) {
	if !a.CoversLocation(q.Latitude, q.Longitude) {
		return RawResponse{}, a.fetch.fail(models.ErrNoCoverage, fmt.Errorf("%.4f,%.4f outside Portugal", q.Latitude, q.Longitude))
	}
	now := a.clock.Now()
	if q.Start.After(now.Add(atlanticHorizon)) {
		return RawResponse{}, a.fetch.fail(models.ErrNoCoverage, fmt.Errorf("window starts beyond %s horizon", atlanticHorizon))
	}
	if a.resolver == nil {
		return RawResponse{}, a.fetch.fail(models.ErrProviderUnavailable, errors.New("no location resolver"))
	}

	loc, err := a.resolver.Resolve(ctx, a, q.Latitude, q.Longitude)
	if err != nil {
		return RawResponse{}, err
	}

	res, err := a.fetch.get(ctx, fmt.Sprintf("%s/forecast/meteorology/cities/daily/%s.json", a.baseURL, loc.ID))
	if err != nil {
		return RawResponse{}, err
	}

	return RawResponse{
		Body:         res.Body,
		Location:     loc.Name,
		LastModified: now.UTC(),
		FetchedAt:    now.UTC(),
	}, nil
}

type ipmaDay struct {
	ForecastDate   string    `json:"forecastDate"`
	TMin           flexFloat `json:"tMin"`
	TMax           flexFloat `json:"tMax"`
	PrecipitaProb  flexFloat `json:"precipitaProb"`
	PredWindDir    string    `json:"predWindDir"`
	IDWeatherType  int       `json:"idWeatherType"`
	ClassWindSpeed int       `json:"classWindSpeed"`
	ClassPrecInt   *int      `json:"classPrecInt,omitempty"`
}

type ipmaForecast struct {
	GlobalIDLocal int       `json:"globalIdLocal"`
	DataUpdate    string    `json:"dataUpdate"`
	Data          []ipmaDay `json:"data"`
}

func (a *AtlanticRepository) Parse(raw RawResponse, q models.Query) (*models.WeatherResponse, error) {
	var f ipmaForecast
	if err := json.Unmarshal(raw.Body, &f); err != nil {
		e := models.NewProviderError(AtlanticName, models.ErrInvalidResponse, fmt.Errorf("failed to parse forecast: %w", err))
		return nil, e.WithExcerpt(raw.Body)
	}

	zone := a.zone(q.Latitude, q.Longitude)
	elaborated := raw.LastModified
	if t, err := time.ParseInLocation(ipmaUpdateLayout, f.DataUpdate, zone); err == nil {
		elaborated = t.UTC()
	}

	var native []models.WeatherData
	for _, day := range f.Data {
		native = append(native, ipmaHourlySamples(day, zone)...)
	}

	fetched := fetchedAt(raw, a.clock)
	samples := buildBlocks(native, q.Start, q.End, fetched, a.GetBlockSize)
	if len(samples) == 0 {
		return nil, models.NewProviderError(AtlanticName, models.ErrNoCoverage, errors.New("no samples in window"))
	}

	return &models.WeatherResponse{
		Provider:        AtlanticName,
		Location:        raw.Location,
		Samples:         samples,
		ElaborationTime: elaborated,
		Expires:         expiresOr(raw, a.GetExpiryTime),
		FetchedAt:       fetched,
	}, nil
}

// ipmaHourlySamples expands one daily forecast into 24 local hours.
func ipmaHourlySamples(day ipmaDay, zone *time.Location) []models.WeatherData {
	date, err := time.ParseInLocation(ipmaDateLayout, day.ForecastDate, zone)
	if err != nil || !day.TMin.Valid || !day.TMax.Valid {
		return nil
	}

	base, ok := ipmaWeatherTypes[day.IDWeatherType]
	if !ok {
		base = models.Unknown
	}
	intensity := intensityForCode(base)
	if day.ClassPrecInt != nil {
		intensity = *day.ClassPrecInt
	}
	prob := day.PrecipitaProb.Or(0)
	dir, _ := CardinalToDegrees(day.PredWindDir)

	out := make([]models.WeatherData, 0, 24)
	for h := 0; h < 24; h++ {
		t := atHour(date, h, zone)
		code := base.WithDaylight(IsDaytime(h))
		w := models.WeatherData{
			Time:                     t.UTC(),
			BlockDuration:            time.Hour,
			Temperature:              round1(InterpolateTemperature(day.TMin.Value, day.TMax.Value, float64(h))),
			WindSpeed:                WindClassSpeed(day.ClassWindSpeed),
			WindDirection:            dir,
			Precipitation:            EstimatePrecipitation(prob, intensity, 1),
			PrecipitationProbability: prob,
			ThunderProbability:       thunderFromCode(code, prob),
			CloudCover:               cloudFromCode(code),
			WeatherCode:              code,
		}
		w.Clamp()
		out = append(out, w)
	}

	return out
}
