package repositories

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/internal/models"
	"weather-router/pkg/logger"
)

const (
	NordicName         = "nordic"
	NordicBaseURL      = "https://opendata.fmi.fi/wfs"
	nordicStoredQuery  = "fmi::forecast::edited::weather::scandinavia::point::simple"
	nordicParameters   = "Temperature,WindSpeedMS,WindDirection,Precipitation1h,TotalCloudCover,Humidity,WeatherSymbol3,PoP,ProbabilityThunderstorm"
	nordicHorizon      = 10 * 24 * time.Hour
	nordicPublishDelay = time.Hour
	nordicTimeZone     = "Europe/Helsinki"
)

var (
	nordicBlocks = BlockTable{{UpTo: 48, Hours: 1}, {UpTo: 240, Hours: 6}, {UpTo: math.Inf(1), Hours: 24}}
	nordicRuns   = []int{0, 3, 6, 9, 12, 15, 18, 21}
)

// symbol3Codes maps the WeatherSymbol3 classification onto normalized codes.
var symbol3Codes = map[int]models.WeatherCode{
	1:  models.ClearSkyDay,
	2:  models.PartlyCloudyDay,
	3:  models.Cloudy,
	21: models.LightRainShowers,
	22: models.RainShowers,
	23: models.HeavyRainShowers,
	31: models.LightRain,
	32: models.Rain,
	33: models.HeavyRain,
	41: models.LightSnowShowers,
	42: models.SnowShowers,
	43: models.HeavySnowShowers,
	51: models.LightSnow,
	52: models.Snow,
	53: models.HeavySnow,
	61: models.RainShowersThunder,
	62: models.HeavyShowersThund,
	63: models.RainThunder,
	64: models.HeavyRainThunder,
	71: models.SleetShowers,
	72: models.SleetShowers,
	73: models.SleetShowers,
	81: models.Sleet,
	82: models.Sleet,
	83: models.Sleet,
	91: models.Fog,
	92: models.Fog,
}

// NordicRepository reads point forecasts from the FMI open data WFS service.
type NordicRepository struct {
	baseURL string
	fetch   *fetcher
	clock   clockwork.Clock
	zone    *time.Location
	l       *logger.Logger
}

func NewNordicRepository(s Settings, deps Deps) *NordicRepository {
	deps = deps.withDefaults()
	if s.Name == "" {
		s.Name = NordicName
	}
	if s.BaseURL == "" {
		s.BaseURL = NordicBaseURL
	}

	return &NordicRepository{
		baseURL: s.BaseURL,
		fetch:   newFetcher(s, deps, nil),
		clock:   deps.Clock,
		zone:    loadLocation(nordicTimeZone),
		l:       deps.Logger,
	}
}

func (n *NordicRepository) Name() string {
	return NordicName
}

func (n *NordicRepository) GetBlockSize(hoursAhead float64) int {
	return nordicBlocks.Size(hoursAhead)
}

// GetExpiryTime follows the three-hourly model runs, published an hour after the run.
func (n *NordicRepository) GetExpiryTime() time.Time {
	return nextScheduled(n.clock.Now(), nordicRuns, nordicPublishDelay)
}

// CoversLocation is the Scandinavian forecast domain.
func (n *NordicRepository) CoversLocation(lat, lon float64) bool {
	return lat >= 54 && lat <= 71.5 && lon >= 4 && lon <= 35
}

func (n *NordicRepository) FetchForecasts(ctx context.Context, q models.Query) (RawResponse, error) {
	if !n.CoversLocation(q.Latitude, q.Longitude) {
		return RawResponse{}, n.fetch.fail(models.ErrNoCoverage, fmt.Errorf("%.4f,%.4f outside forecast domain", q.Latitude, q.Longitude))
	}
	now := n.clock.Now()
	if q.Start.After(now.Add(nordicHorizon)) {
		return RawResponse{}, n.fetch.fail(models.ErrNoCoverage, fmt.Errorf("window starts beyond %s horizon", nordicHorizon))
	}

	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "getFeature")
	params.Set("storedquery_id", nordicStoredQuery)
	params.Set("latlon", fmt.Sprintf("%.4f,%.4f", q.Latitude, q.Longitude))
	params.Set("timestep", "60")
	params.Set("starttime", q.Start.UTC().Truncate(time.Hour).Format(time.RFC3339))
	params.Set("endtime", q.End.UTC().Format(time.RFC3339))
	params.Set("parameters", nordicParameters)

	res, err := n.fetch.get(ctx, n.baseURL+"?"+params.Encode())
	if err != nil {
		return RawResponse{}, err
	}

	lastModified := parseHTTPTime(res.Header, "Last-Modified")
	if lastModified.IsZero() {
		lastModified = now.UTC()
	}

	return RawResponse{
		Body:         res.Body,
		LastModified: lastModified,
		FetchedAt:    now.UTC(),
	}, nil
}

type fmiFeatureCollection struct {
	XMLName xml.Name    `xml:"FeatureCollection"`
	Members []fmiMember `xml:"member"`
}

type fmiMember struct {
	Element fmiElement `xml:"BsWfsElement"`
}

type fmiElement struct {
	Time  string `xml:"Time"`
	Name  string `xml:"ParameterName"`
	Value string `xml:"ParameterValue"`
}

func (n *NordicRepository) Parse(raw RawResponse, q models.Query) (*models.WeatherResponse, error) {
	var fc fmiFeatureCollection
	if err := xml.Unmarshal(raw.Body, &fc); err != nil {
		e := models.NewProviderError(NordicName, models.ErrInvalidResponse, fmt.Errorf("failed to parse XML response: %w", err))
		return nil, e.WithExcerpt(raw.Body)
	}

	byTime := make(map[time.Time]*models.WeatherData)
	symbols := make(map[time.Time]int)

	for _, m := range fc.Members {
		el := m.Element
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(el.Time))
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(el.Value), 64)
		if err != nil || math.IsNaN(v) {
			// FMI reports missing values as NaN
			continue
		}

		t = t.UTC()
		w, ok := byTime[t]
		if !ok {
			w = &models.WeatherData{Time: t, BlockDuration: time.Hour, WeatherCode: models.Unknown}
			byTime[t] = w
		}

		switch el.Name {
		case "Temperature":
			w.Temperature = v
		case "WindSpeedMS":
			w.WindSpeed = v
		case "WindDirection":
			w.WindDirection = v
		case "Precipitation1h":
			w.Precipitation = v
		case "TotalCloudCover":
			w.CloudCover = v
		case "Humidity":
			w.Humidity = v
		case "PoP":
			w.PrecipitationProbability = v
		case "ProbabilityThunderstorm":
			w.ThunderProbability = models.Float(v)
		case "WeatherSymbol3":
			symbols[t] = int(v)
		}
	}

	native := make([]models.WeatherData, 0, len(byTime))
	for t, w := range byTime {
		if code, ok := symbol3Codes[symbols[t]]; ok {
			w.WeatherCode = code.WithDaylight(IsDaytime(t.In(n.zone).Hour()))
		}
		w.Clamp()
		native = append(native, *w)
	}

	fetched := fetchedAt(raw, n.clock)
	samples := buildBlocks(native, q.Start, q.End, fetched, n.GetBlockSize)
	if len(samples) == 0 {
		return nil, models.NewProviderError(NordicName, models.ErrNoCoverage, fmt.Errorf("no samples in window"))
	}

	return &models.WeatherResponse{
		Provider:        NordicName,
		Location:        raw.Location,
		Samples:         samples,
		ElaborationTime: raw.LastModified,
		Expires:         expiresOr(raw, n.GetExpiryTime),
		FetchedAt:       fetched,
	}, nil
}
