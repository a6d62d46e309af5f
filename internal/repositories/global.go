package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/internal/models"
	"weather-router/pkg/logger"
)

const (
	GlobalName    = "global"
	GlobalBaseURL = "https://api.met.no/weatherapi/locationforecast/2.0"
	globalHorizon = 9 * 24 * time.Hour
)

var globalBlocks = BlockTable{{UpTo: 48, Hours: 1}, {UpTo: math.Inf(1), Hours: 6}}

// GlobalRepository reads MET Norway locationforecast, which covers the whole globe and
// serves as the fallback for every region.
type GlobalRepository struct {
	baseURL string
	fetch   *fetcher
	clock   clockwork.Clock
	l       *logger.Logger
}

func NewGlobalRepository(s Settings, deps Deps) *GlobalRepository {
	deps = deps.withDefaults()
	if s.Name == "" {
		s.Name = GlobalName
	}
	if s.BaseURL == "" {
		s.BaseURL = GlobalBaseURL
	}

	return &GlobalRepository{
		baseURL: s.BaseURL,
		fetch:   newFetcher(s, deps, map[string]string{"Accept": "application/json"}),
		clock:   deps.Clock,
		l:       deps.Logger,
	}
}

func (g *GlobalRepository) Name() string {
	return GlobalName
}

func (g *GlobalRepository) GetBlockSize(hoursAhead float64) int {
	return globalBlocks.Size(hoursAhead)
}

// GetExpiryTime is the top of the next hour; the Expires header overrides it at parse time.
func (g *GlobalRepository) GetExpiryTime() time.Time {
	return g.clock.Now().UTC().Truncate(time.Hour).Add(time.Hour)
}

func (g *GlobalRepository) CoversLocation(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (g *GlobalRepository) FetchForecasts(ctx context.Context, q models.Query) (RawResponse, error) {
	now := g.clock.Now()
	if q.Start.After(now.Add(globalHorizon)) {
		return RawResponse{}, g.fetch.fail(models.ErrNoCoverage, fmt.Errorf("window starts beyond %s horizon", globalHorizon))
	}

	// More than four decimals is rejected by the API.
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.4f", truncate4(q.Latitude)))
	params.Set("lon", fmt.Sprintf("%.4f", truncate4(q.Longitude)))

	res, err := g.fetch.get(ctx, g.baseURL+"/complete?"+params.Encode())
	if err != nil {
		return RawResponse{}, err
	}

	lastModified := parseHTTPTime(res.Header, "Last-Modified")
	if lastModified.IsZero() {
		lastModified = now.UTC()
	}

	return RawResponse{
		Body:         res.Body,
		Expires:      parseHTTPTime(res.Header, "Expires"),
		LastModified: lastModified,
		FetchedAt:    now.UTC(),
	}, nil
}

func truncate4(v float64) float64 {
	return math.Trunc(v*1e4) / 1e4
}

type metForecast struct {
	Properties struct {
		Meta struct {
			UpdatedAt time.Time `json:"updated_at"`
		} `json:"meta"`
		Timeseries []metTimeseries `json:"timeseries"`
	} `json:"properties"`
}

type metTimeseries struct {
	Time time.Time `json:"time"`
	Data struct {
		Instant struct {
			Details struct {
				AirTemperature    float64 `json:"air_temperature"`
				CloudAreaFraction float64 `json:"cloud_area_fraction"`
				RelativeHumidity  float64 `json:"relative_humidity"`
				WindFromDirection float64 `json:"wind_from_direction"`
				WindSpeed         float64 `json:"wind_speed"`
			} `json:"details"`
		} `json:"instant"`
		Next1Hours *metNextHours `json:"next_1_hours,omitempty"`
		Next6Hours *metNextHours `json:"next_6_hours,omitempty"`
	} `json:"data"`
}

type metNextHours struct {
	Summary struct {
		SymbolCode string `json:"symbol_code"`
	} `json:"summary"`
	Details struct {
		PrecipitationAmount        float64  `json:"precipitation_amount"`
		ProbabilityOfPrecipitation float64  `json:"probability_of_precipitation"`
		ProbabilityOfThunder       *float64 `json:"probability_of_thunder,omitempty"`
	} `json:"details"`
}

func (g *GlobalRepository) Parse(raw RawResponse, q models.Query) (*models.WeatherResponse, error) {
	var f metForecast
	if err := json.Unmarshal(raw.Body, &f); err != nil {
		e := models.NewProviderError(GlobalName, models.ErrInvalidResponse, fmt.Errorf("failed to parse forecast: %w", err))
		return nil, e.WithExcerpt(raw.Body)
	}

	series := f.Properties.Timeseries
	native := make([]models.WeatherData, 0, len(series))
	for i, ts := range series {
		next, duration := ts.Data.Next1Hours, time.Hour
		if next == nil {
			next, duration = ts.Data.Next6Hours, 6*time.Hour
		}
		if next == nil {
			continue
		}

		t := ts.Time.UTC()
		precipitation := next.Details.PrecipitationAmount
		// A 6h period is cut at the next sample so periods never overlap.
		if i+1 < len(series) {
			if gap := series[i+1].Time.Sub(ts.Time); gap > 0 && gap < duration {
				precipitation *= float64(gap) / float64(duration)
				duration = gap
			}
		}

		in := ts.Data.Instant.Details
		w := models.WeatherData{
			Time:                     t,
			BlockDuration:            duration,
			Temperature:              in.AirTemperature,
			WindSpeed:                in.WindSpeed,
			WindDirection:            in.WindFromDirection,
			Precipitation:            precipitation,
			PrecipitationProbability: next.Details.ProbabilityOfPrecipitation,
			ThunderProbability:       next.Details.ProbabilityOfThunder,
			Humidity:                 in.RelativeHumidity,
			CloudCover:               in.CloudAreaFraction,
			WeatherCode:              models.ParseWeatherCode(next.Summary.SymbolCode, IsDaytime(SolarHour(t, q.Longitude))),
		}
		w.Clamp()
		native = append(native, w)
	}

	fetched := fetchedAt(raw, g.clock)
	samples := buildBlocks(native, q.Start, q.End, fetched, g.GetBlockSize)
	if len(samples) == 0 {
		return nil, models.NewProviderError(GlobalName, models.ErrNoCoverage, errors.New("no samples in window"))
	}

	elaborated := f.Properties.Meta.UpdatedAt.UTC()
	if f.Properties.Meta.UpdatedAt.IsZero() {
		elaborated = raw.LastModified
	}

	return &models.WeatherResponse{
		Provider:        GlobalName,
		Location:        raw.Location,
		Samples:         samples,
		ElaborationTime: elaborated,
		Expires:         expiresOr(raw, g.GetExpiryTime),
		FetchedAt:       fetched,
	}, nil
}
