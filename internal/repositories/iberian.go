package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/internal/locations"
	"weather-router/internal/models"
	"weather-router/pkg/logger"
)

const (
	IberianName          = "iberian"
	IberianBaseURL       = "https://opendata.aemet.es/opendata"
	iberianHorizon       = 7 * 24 * time.Hour
	iberianHourlyHorizon = 48.0
	aemetLocalLayout     = "2006-01-02T15:04:05"
	kmhToMs              = 1 / 3.6
)

var (
	iberianBlocks = BlockTable{{UpTo: 48, Hours: 1}, {UpTo: 96, Hours: 6}, {UpTo: math.Inf(1), Hours: 24}}
	iberianRuns   = []int{6, 18}
)

var aemetSkyCodes = map[string]models.WeatherCode{
	"11": models.ClearSkyDay,
	"12": models.FairDay,
	"13": models.PartlyCloudyDay,
	"14": models.Cloudy,
	"15": models.Cloudy,
	"16": models.Cloudy,
	"17": models.PartlyCloudyDay,
	"23": models.RainShowers,
	"24": models.Rain,
	"25": models.Rain,
	"26": models.Rain,
	"33": models.SnowShowers,
	"34": models.Snow,
	"35": models.Snow,
	"36": models.Snow,
	"43": models.LightRainShowers,
	"44": models.LightRain,
	"45": models.LightRain,
	"46": models.LightRain,
	"51": models.RainShowersThunder,
	"52": models.RainThunder,
	"53": models.RainThunder,
	"54": models.RainThunder,
	"61": models.RainShowersThunder,
	"62": models.LightRainThunder,
	"63": models.LightRainThunder,
	"64": models.LightRainThunder,
	"71": models.LightSnowShowers,
	"72": models.LightSnow,
	"73": models.LightSnow,
	"74": models.LightSnow,
	"81": models.Fog,
	"82": models.Fog,
	"83": models.Fog,
}

// IberianRepository reads municipality forecasts from AEMET OpenData. Coordinates are
// resolved to the nearest municipality first.
type IberianRepository struct {
	baseURL  string
	fetch    *fetcher
	clock    clockwork.Clock
	resolver *locations.Resolver
	l        *logger.Logger
}

func NewIberianRepository(s Settings, deps Deps) *IberianRepository {
	deps = deps.withDefaults()
	if s.Name == "" {
		s.Name = IberianName
	}
	if s.BaseURL == "" {
		s.BaseURL = IberianBaseURL
	}

	return &IberianRepository{
		baseURL:  strings.TrimSuffix(s.BaseURL, "/"),
		fetch:    newFetcher(s, deps, map[string]string{"api_key": s.APIKey, "Accept": "application/json"}),
		clock:    deps.Clock,
		resolver: deps.Resolver,
		l:        deps.Logger,
	}
}

func (r *IberianRepository) Name() string {
	return IberianName
}

func (r *IberianRepository) GetBlockSize(hoursAhead float64) int {
	return iberianBlocks.Size(hoursAhead)
}

// GetExpiryTime follows the twice daily forecast update.
func (r *IberianRepository) GetExpiryTime() time.Time {
	return nextScheduled(r.clock.Now(), iberianRuns, 0)
}

// CoversLocation is mainland Spain, the Balearic and the Canary Islands.
func (r *IberianRepository) CoversLocation(lat, lon float64) bool {
	return lat >= 27.5 && lat <= 43.9 && lon >= -18.2 && lon <= 4.4
}

func (r *IberianRepository) zone(lon float64) *time.Location {
	if lon < -13 {
		return loadLocation("Atlantic/Canary")
	}
	return loadLocation("Europe/Madrid")
}

type aemetEnvelope struct {
	Descripcion string `json:"descripcion"`
	Estado      int    `json:"estado"`
	Datos       string `json:"datos"`
}

// getData follows AEMET's two-step protocol: the endpoint answers with a short-lived
// URL that serves the actual data.
func (r *IberianRepository) getData(ctx context.Context, path string) ([]byte, error) {
	res, err := r.fetch.get(ctx, r.baseURL+path)
	if err != nil {
		return nil, err
	}
	body := toUTF8(res.Body)
	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "[") {
		return body, nil
	}

	var env aemetEnvelope
	if err = json.Unmarshal(body, &env); err != nil {
		e := models.NewProviderError(IberianName, models.ErrInvalidResponse, fmt.Errorf("failed to parse envelope: %w", err))
		return nil, e.WithExcerpt(body)
	}

	switch {
	case env.Estado == 404:
		return nil, r.fetch.fail(models.ErrNoCoverage, errors.New(env.Descripcion))
	case env.Estado == 429:
		r.fetch.limiter.RecordRateLimited(IberianName)
		return nil, r.fetch.fail(models.ErrRateLimited, errors.New(env.Descripcion))
	case env.Estado != 200 || env.Datos == "":
		return nil, r.fetch.fail(models.ErrProviderUnavailable, fmt.Errorf("estado %d: %s", env.Estado, env.Descripcion))
	}

	res, err = r.fetch.get(ctx, env.Datos)
	if err != nil {
		return nil, err
	}

	return toUTF8(res.Body), nil
}

type aemetMunicipio struct {
	ID       string    `json:"id"`
	Nombre   string    `json:"nombre"`
	Latitud  flexFloat `json:"latitud_dec"`
	Longitud flexFloat `json:"longitud_dec"`
	Altitud  flexFloat `json:"altitud"`
}

// FetchLocations lists AEMET municipalities.
func (r *IberianRepository) FetchLocations(ctx context.Context) ([]models.Location, error) {
	body, err := r.getData(ctx, "/api/maestro/municipios")
	if err != nil {
		return nil, err
	}

	var municipios []aemetMunicipio
	if err = json.Unmarshal(body, &municipios); err != nil {
		e := models.NewProviderError(IberianName, models.ErrInvalidResponse, fmt.Errorf("failed to parse municipalities: %w", err))
		return nil, e.WithExcerpt(body)
	}

	out := make([]models.Location, 0, len(municipios))
	for _, m := range municipios {
		if !m.Latitud.Valid || !m.Longitud.Valid {
			continue
		}
		loc := models.Location{
			ID:        strings.TrimPrefix(m.ID, "id"),
			Name:      m.Nombre,
			Latitude:  m.Latitud.Value,
			Longitude: m.Longitud.Value,
			Region:    "ES",
		}
		if m.Altitud.Valid {
			loc.Altitude = models.Float(m.Altitud.Value)
		}
		out = append(out, loc)
	}

	return out, nil
}

type aemetBundle struct {
	Hourly json.RawMessage `json:"hourly,omitempty"`
	Daily  json.RawMessage `json:"daily,omitempty"`
}

func (r *IberianRepository) FetchForecasts(ctx context.Context, q models.Query) (RawResponse, error) {
	if !r.CoversLocation(q.Latitude, q.Longitude) {
		return RawResponse{}, r.fetch.fail(models.ErrNoCoverage, fmt.Errorf("%.4f,%.4f outside Spain", q.Latitude, q.Longitude))
	}
	now := r.clock.Now()
	if q.Start.After(now.Add(iberianHorizon)) {
		return RawResponse{}, r.fetch.fail(models.ErrNoCoverage, fmt.Errorf("window starts beyond %s horizon", iberianHorizon))
	}
	if r.resolver == nil {
		return RawResponse{}, r.fetch.fail(models.ErrProviderUnavailable, errors.New("no location resolver"))
	}

	loc, err := r.resolver.Resolve(ctx, r, q.Latitude, q.Longitude)
	if err != nil {
		return RawResponse{}, err
	}
	id := url.PathEscape(loc.ID)

	var bundle aemetBundle
	if models.HoursAhead(now, q.Start) <= iberianHourlyHorizon {
		if bundle.Hourly, err = r.getData(ctx, "/api/prediccion/especifica/municipio/horaria/"+id); err != nil {
			return RawResponse{}, err
		}
	}
	if models.HoursAhead(now, q.End) > iberianHourlyHorizon {
		if bundle.Daily, err = r.getData(ctx, "/api/prediccion/especifica/municipio/diaria/"+id); err != nil {
			return RawResponse{}, err
		}
	}

	body, err := json.Marshal(bundle)
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to encode forecast bundle: %w", err)
	}

	return RawResponse{
		Body:         body,
		Location:     loc.Name,
		LastModified: now.UTC(),
		FetchedAt:    now.UTC(),
	}, nil
}

type aemetValue struct {
	Value   flexFloat `json:"value"`
	Periodo string    `json:"periodo"`
}

type aemetSky struct {
	Value   flexString `json:"value"`
	Periodo string     `json:"periodo"`
}

type aemetHourlyWind struct {
	Direccion []string     `json:"direccion"`
	Velocidad []flexString `json:"velocidad"`
	Periodo   string       `json:"periodo"`
}

type aemetHourlyDay struct {
	Fecha             string            `json:"fecha"`
	EstadoCielo       []aemetSky        `json:"estadoCielo"`
	Precipitacion     []aemetValue      `json:"precipitacion"`
	ProbPrecipitacion []aemetValue      `json:"probPrecipitacion"`
	ProbTormenta      []aemetValue      `json:"probTormenta"`
	Temperatura       []aemetValue      `json:"temperatura"`
	HumedadRelativa   []aemetValue      `json:"humedadRelativa"`
	VientoAndRachaMax []aemetHourlyWind `json:"vientoAndRachaMax"`
}

type aemetDailyWind struct {
	Direccion string    `json:"direccion"`
	Velocidad flexFloat `json:"velocidad"`
	Periodo   string    `json:"periodo"`
}

type aemetRange struct {
	Maxima flexFloat `json:"maxima"`
	Minima flexFloat `json:"minima"`
}

type aemetDailyDay struct {
	Fecha             string           `json:"fecha"`
	ProbPrecipitacion []aemetValue     `json:"probPrecipitacion"`
	EstadoCielo       []aemetSky       `json:"estadoCielo"`
	Viento            []aemetDailyWind `json:"viento"`
	Temperatura       aemetRange       `json:"temperatura"`
	HumedadRelativa   aemetRange       `json:"humedadRelativa"`
}

type aemetForecast[D any] struct {
	Elaborado  string `json:"elaborado"`
	Nombre     string `json:"nombre"`
	Prediccion struct {
		Dia []D `json:"dia"`
	} `json:"prediccion"`
}

func (r *IberianRepository) Parse(raw RawResponse, q models.Query) (*models.WeatherResponse, error) {
	invalid := func(err error) error {
		return models.NewProviderError(IberianName, models.ErrInvalidResponse, err).WithExcerpt(raw.Body)
	}

	var bundle aemetBundle
	if err := json.Unmarshal(raw.Body, &bundle); err != nil {
		return nil, invalid(fmt.Errorf("failed to parse forecast bundle: %w", err))
	}

	zone := r.zone(q.Longitude)
	elaborated := raw.LastModified
	var native []models.WeatherData
	var hourlyEnd time.Time

	if len(bundle.Hourly) > 0 {
		var hourly []aemetForecast[aemetHourlyDay]
		if err := json.Unmarshal(bundle.Hourly, &hourly); err != nil || len(hourly) == 0 {
			return nil, invalid(fmt.Errorf("failed to parse hourly forecast: %v", err))
		}
		if t, err := time.ParseInLocation(aemetLocalLayout, hourly[0].Elaborado, zone); err == nil {
			elaborated = t.UTC()
		}
		for _, day := range hourly[0].Prediccion.Dia {
			for _, w := range aemetHourlySamples(day, zone) {
				native = append(native, w)
				if w.End().After(hourlyEnd) {
					hourlyEnd = w.End()
				}
			}
		}
	}

	if len(bundle.Daily) > 0 {
		var daily []aemetForecast[aemetDailyDay]
		if err := json.Unmarshal(bundle.Daily, &daily); err != nil || len(daily) == 0 {
			return nil, invalid(fmt.Errorf("failed to parse daily forecast: %v", err))
		}
		for _, day := range daily[0].Prediccion.Dia {
			for _, w := range aemetDailySamples(day, zone) {
				if w.Time.Before(hourlyEnd) {
					continue
				}
				native = append(native, w)
			}
		}
	}

	fetched := fetchedAt(raw, r.clock)
	samples := buildBlocks(native, q.Start, q.End, fetched, r.GetBlockSize)
	if len(samples) == 0 {
		return nil, models.NewProviderError(IberianName, models.ErrNoCoverage, fmt.Errorf("no samples in window"))
	}

	return &models.WeatherResponse{
		Provider:        IberianName,
		Location:        raw.Location,
		Samples:         samples,
		ElaborationTime: elaborated,
		Expires:         expiresOr(raw, r.GetExpiryTime),
		FetchedAt:       fetched,
	}, nil
}

// aemetSkyCode maps an estadoCielo value; the trailing n marks night and is recomputed locally.
func aemetSkyCode(v string, isDay bool) models.WeatherCode {
	code, ok := aemetSkyCodes[strings.TrimSuffix(strings.TrimSpace(v), "n")]
	if !ok {
		return models.Unknown
	}
	return code.WithDaylight(isDay)
}

func aemetDate(fecha string, zone *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(aemetLocalLayout, fecha, zone)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func atHour(day time.Time, hour int, zone *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, zone)
}

// inRange reports whether hour falls in a "HHHH" period such as "0814" or the wrapping "2002".
func inRange(periodo string, hour int) bool {
	if len(periodo) != 4 {
		return false
	}
	from, err1 := strconv.Atoi(periodo[:2])
	to, err2 := strconv.Atoi(periodo[2:])
	if err1 != nil || err2 != nil {
		return false
	}
	if from <= to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

func aemetHourlySamples(day aemetHourlyDay, zone *time.Location) []models.WeatherData {
	date, ok := aemetDate(day.Fecha, zone)
	if !ok {
		return nil
	}

	byHour := func(values []aemetValue, hour int) flexFloat {
		p := fmt.Sprintf("%02d", hour)
		for _, v := range values {
			if v.Periodo == p {
				return v.Value
			}
		}
		return flexFloat{}
	}
	byRange := func(values []aemetValue, hour int) flexFloat {
		for _, v := range values {
			if inRange(v.Periodo, hour) {
				return v.Value
			}
		}
		return flexFloat{}
	}

	var out []models.WeatherData
	for _, temp := range day.Temperatura {
		hour, err := strconv.Atoi(temp.Periodo)
		if err != nil || !temp.Value.Valid {
			continue
		}
		t := atHour(date, hour, zone)
		isDay := IsDaytime(t.Hour())

		w := models.WeatherData{
			Time:                     t.UTC(),
			BlockDuration:            time.Hour,
			Temperature:              temp.Value.Value,
			Precipitation:            byHour(day.Precipitacion, hour).Or(0),
			PrecipitationProbability: byRange(day.ProbPrecipitacion, hour).Or(0),
			Humidity:                 byHour(day.HumedadRelativa, hour).Or(0),
			WeatherCode:              models.Unknown,
		}
		if thunder := byRange(day.ProbTormenta, hour); thunder.Valid {
			w.ThunderProbability = models.Float(thunder.Value)
		}
		for _, sky := range day.EstadoCielo {
			if sky.Periodo == temp.Periodo {
				w.WeatherCode = aemetSkyCode(string(sky.Value), isDay)
			}
		}
		for _, wind := range day.VientoAndRachaMax {
			if wind.Periodo != temp.Periodo || len(wind.Direccion) == 0 || len(wind.Velocidad) == 0 {
				continue
			}
			speed, err := strconv.ParseFloat(string(wind.Velocidad[0]), 64)
			if err == nil {
				w.WindSpeed = speed * kmhToMs
			}
			if deg, ok := CardinalToDegrees(wind.Direccion[0]); ok {
				w.WindDirection = deg
			}
		}
		w.CloudCover = cloudFromCode(w.WeatherCode)
		w.Clamp()
		out = append(out, w)
	}

	return out
}

var aemetDailyPeriods = [][]string{
	{"00-06", "06-12", "12-18", "18-24"},
	{"00-12", "12-24"},
	{"00-24"},
}

func aemetDailySamples(day aemetDailyDay, zone *time.Location) []models.WeatherData {
	date, ok := aemetDate(day.Fecha, zone)
	if !ok {
		return nil
	}

	has := func(periodo string) bool {
		for _, v := range day.EstadoCielo {
			if v.Periodo == periodo && v.Value != "" {
				return true
			}
		}
		for _, v := range day.ProbPrecipitacion {
			if v.Periodo == periodo && v.Value.Valid {
				return true
			}
		}
		return false
	}

	periods := aemetDailyPeriods[2]
	for _, set := range aemetDailyPeriods[:2] {
		if has(set[0]) {
			periods = set
			break
		}
	}

	// Later days carry a single value without a period.
	whole := func(periodo string) bool { return periodo == "00-24" || periodo == "" }

	tmin := day.Temperatura.Minima.Or(0)
	tmax := day.Temperatura.Maxima.Or(tmin)
	humidity := (day.HumedadRelativa.Maxima.Or(0) + day.HumedadRelativa.Minima.Or(0)) / 2

	var out []models.WeatherData
	for _, p := range periods {
		from, _ := strconv.Atoi(p[:2])
		to, _ := strconv.Atoi(p[3:])
		start := atHour(date, from, zone)
		end := atHour(date, 0, zone).AddDate(0, 0, 1)
		if to < 24 {
			end = atHour(date, to, zone)
		}
		mid := float64(from+to) / 2
		isDay := IsDaytime(int(mid))

		code := models.Unknown
		for _, v := range day.EstadoCielo {
			if v.Value == "" {
				continue
			}
			if v.Periodo == p || (code == models.Unknown && whole(v.Periodo)) {
				code = aemetSkyCode(string(v.Value), isDay)
			}
		}

		var prob float64
		for _, v := range day.ProbPrecipitacion {
			if v.Periodo == p || (prob == 0 && whole(v.Periodo)) {
				prob = v.Value.Or(prob)
			}
		}

		var speed, dir float64
		for _, v := range day.Viento {
			if v.Periodo == p || (speed == 0 && whole(v.Periodo)) {
				speed = v.Velocidad.Or(0) * kmhToMs
				dir, _ = CardinalToDegrees(v.Direccion)
			}
		}

		hours := end.Sub(start).Hours()
		w := models.WeatherData{
			Time:                     start.UTC(),
			BlockDuration:            end.Sub(start),
			Temperature:              round1(InterpolateTemperature(tmin, tmax, mid)),
			WindSpeed:                speed,
			WindDirection:            dir,
			Precipitation:            EstimatePrecipitation(prob, intensityForCode(code), hours),
			PrecipitationProbability: prob,
			ThunderProbability:       thunderFromCode(code, prob),
			Humidity:                 humidity,
			CloudCover:               cloudFromCode(code),
			WeatherCode:              code,
		}
		w.Clamp()
		out = append(out, w)
	}

	return out
}
