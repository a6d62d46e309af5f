package repositories

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-router/internal/models"
)

const aemetMunicipios = `[
 {"id":"id28079","nombre":"Madrid","latitud_dec":"40.4165","longitud_dec":"-3.70256","altitud":"657"},
 {"id":"id08019","nombre":"Barcelona","latitud_dec":"41.38879","longitud_dec":"2.15899","altitud":"12"},
 {"id":"id99999","nombre":"Sin coordenadas","latitud_dec":"","longitud_dec":""}
]`

const aemetHourly = `[{
 "elaborado":"2024-06-10T08:00:00","nombre":"Madrid","provincia":"Madrid",
 "prediccion":{"dia":[{
  "fecha":"2024-06-10T00:00:00",
  "estadoCielo":[{"value":"12","periodo":"12","descripcion":"Poco nuboso"},{"value":"43","periodo":"13","descripcion":"Intervalos nubosos con lluvia escasa"},{"value":"51n","periodo":"14","descripcion":"Intervalos nubosos con tormenta"}],
  "precipitacion":[{"value":"0","periodo":"12"},{"value":"Ip","periodo":"13"},{"value":"2,5","periodo":"14"}],
  "probPrecipitacion":[{"value":"20","periodo":"0814"},{"value":"40","periodo":"1420"}],
  "probTormenta":[{"value":"10","periodo":"0814"},{"value":"30","periodo":"1420"}],
  "temperatura":[{"value":"25","periodo":"12"},{"value":"26","periodo":"13"},{"value":"27","periodo":"14"}],
  "humedadRelativa":[{"value":"30","periodo":"12"},{"value":"28","periodo":"13"},{"value":"27","periodo":"14"}],
  "vientoAndRachaMax":[
   {"direccion":["NO"],"velocidad":["18"],"periodo":"12"},{"value":"30","periodo":"12"},
   {"direccion":["C"],"velocidad":["0"],"periodo":"13"},{"value":"12","periodo":"13"},
   {"direccion":["S"],"velocidad":["36"],"periodo":"14"},{"value":"50","periodo":"14"}
  ]
 }]}
}]`

func aemetServer(t *testing.T, hourlyCalls *atomic.Int32) string {
	t.Helper()

	var base string
	envelope := func(w http.ResponseWriter, path string) {
		_, _ = fmt.Fprintf(w, `{"descripcion":"exito","estado":200,"datos":"%s%s","metadatos":"%s/meta"}`, base, path, base)
	}

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/maestro/municipios":
			envelope(w, "/datos/municipios")
		case "/api/prediccion/especifica/municipio/horaria/28079":
			hourlyCalls.Add(1)
			envelope(w, "/datos/horaria")
		case "/api/prediccion/especifica/municipio/horaria/00000":
			_, _ = w.Write([]byte(`{"descripcion":"No hay datos que satisfagan esos criterios","estado":404}`))
		case "/datos/municipios":
			_, _ = w.Write([]byte(aemetMunicipios))
		case "/datos/horaria":
			_, _ = w.Write([]byte(aemetHourly))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	base = server.URL
	return server.URL
}

func TestIberianRepository_FetchAndParseHourly(t *testing.T) {
	var hourlyCalls atomic.Int32
	base := aemetServer(t, &hourlyCalls)

	clock := clockwork.NewFakeClockAt(testNow)
	repo := NewIberianRepository(Settings{BaseURL: base, APIKey: "secret"}, testDeps(t, clock))
	q := query(40.42, -3.70, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC))

	raw, err := repo.FetchForecasts(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "Madrid", raw.Location)
	assert.Equal(t, int32(1), hourlyCalls.Load())

	resp, err := repo.Parse(raw, q)
	require.NoError(t, err)
	require.NoError(t, resp.Validate(clock.Now()))

	assert.Equal(t, IberianName, resp.Provider)
	assert.Equal(t, "Madrid", resp.Location)
	assert.Equal(t, time.Date(2024, 6, 10, 6, 0, 0, 0, time.UTC), resp.ElaborationTime)
	assert.Equal(t, time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC), resp.Expires)

	require.Len(t, resp.Samples, 3)
	noon := resp.Samples[0]
	assert.Equal(t, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), noon.Time)
	assert.Equal(t, 25.0, noon.Temperature)
	assert.Equal(t, 5.0, noon.WindSpeed)
	assert.Equal(t, 315.0, noon.WindDirection)
	assert.Equal(t, 20.0, noon.PrecipitationProbability)
	assert.Equal(t, 30.0, noon.Humidity)
	assert.Equal(t, models.FairDay, noon.WeatherCode)
	require.NotNil(t, noon.ThunderProbability)
	assert.Equal(t, 10.0, *noon.ThunderProbability)

	calm := resp.Samples[1]
	assert.Equal(t, 0.1, calm.Precipitation)
	assert.Equal(t, 0.0, calm.WindSpeed)
	assert.Equal(t, models.LightRainShowers, calm.WeatherCode)

	storm := resp.Samples[2]
	assert.Equal(t, 2.5, storm.Precipitation)
	assert.Equal(t, 10.0, storm.WindSpeed)
	assert.Equal(t, 180.0, storm.WindDirection)
	assert.Equal(t, 40.0, storm.PrecipitationProbability)
	assert.Equal(t, 30.0, *storm.ThunderProbability)
	assert.Equal(t, models.RainShowersThunder, storm.WeatherCode)
}

func TestIberianRepository_ResolvesNearestMunicipality(t *testing.T) {
	var hourlyCalls atomic.Int32
	base := aemetServer(t, &hourlyCalls)

	clock := clockwork.NewFakeClockAt(testNow)
	deps := testDeps(t, clock)
	repo := NewIberianRepository(Settings{BaseURL: base, APIKey: "secret"}, deps)

	loc, err := deps.Resolver.Resolve(context.Background(), repo, 40.0, -3.5)
	require.NoError(t, err)
	assert.Equal(t, "28079", loc.ID)
	require.NotNil(t, loc.Altitude)
	assert.Equal(t, 657.0, *loc.Altitude)

	loc, err = deps.Resolver.Resolve(context.Background(), repo, 41.5, 2.0)
	require.NoError(t, err)
	assert.Equal(t, "Barcelona", loc.Name)
}

func TestIberianRepository_EnvelopeErrors(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			_, _ = w.Write([]byte(`{"descripcion":"No hay datos","estado":404}`))
		case "/limited":
			_, _ = w.Write([]byte(`{"descripcion":"Limite de peticiones","estado":429}`))
		case "/broken":
			_, _ = w.Write([]byte(`<html>`))
		}
	})

	repo := NewIberianRepository(Settings{BaseURL: server.URL}, testDeps(t, clockwork.NewFakeClockAt(testNow)))

	_, err := repo.getData(context.Background(), "/missing")
	assert.True(t, errors.Is(err, models.ErrNoCoverage))

	_, err = repo.getData(context.Background(), "/broken")
	assert.True(t, errors.Is(err, models.ErrInvalidResponse))

	_, err = repo.getData(context.Background(), "/limited")
	assert.True(t, errors.Is(err, models.ErrRateLimited))
	assert.Greater(t, repo.fetch.limiter.Interval(IberianName), time.Duration(0))
}

func TestIberianRepository_Coverage(t *testing.T) {
	repo := NewIberianRepository(Settings{}, testDeps(t, clockwork.NewFakeClockAt(testNow)))

	assert.True(t, repo.CoversLocation(40.42, -3.70))
	assert.True(t, repo.CoversLocation(28.12, -15.43))
	assert.False(t, repo.CoversLocation(60.17, 24.94))

	_, err := repo.FetchForecasts(context.Background(), query(60.17, 24.94, testNow, testNow.Add(time.Hour)))
	assert.True(t, errors.Is(err, models.ErrNoCoverage))

	far := testNow.Add(8 * 24 * time.Hour)
	_, err = repo.FetchForecasts(context.Background(), query(40.42, -3.70, far, far.Add(time.Hour)))
	assert.True(t, errors.Is(err, models.ErrNoCoverage))

	assert.Equal(t, "Atlantic/Canary", repo.zone(-15.4).String())
	assert.Equal(t, "Europe/Madrid", repo.zone(-3.7).String())
}

func TestAemetDailySamples(t *testing.T) {
	madrid := loadLocation("Europe/Madrid")

	quarters := aemetDailyDay{
		Fecha: "2024-06-12T00:00:00",
		ProbPrecipitacion: []aemetValue{
			{Value: flexFloat{Value: 0, Valid: true}, Periodo: "00-24"},
			{Value: flexFloat{Value: 0, Valid: true}, Periodo: "00-06"},
			{Value: flexFloat{Value: 10, Valid: true}, Periodo: "06-12"},
			{Value: flexFloat{Value: 60, Valid: true}, Periodo: "12-18"},
			{Value: flexFloat{Value: 20, Valid: true}, Periodo: "18-24"},
		},
		EstadoCielo: []aemetSky{
			{Value: "11", Periodo: "00-06"},
			{Value: "12", Periodo: "06-12"},
			{Value: "52", Periodo: "12-18"},
			{Value: "14n", Periodo: "18-24"},
		},
		Viento:          []aemetDailyWind{{Direccion: "E", Velocidad: flexFloat{Value: 18, Valid: true}, Periodo: "12-18"}},
		Temperatura:     aemetRange{Maxima: flexFloat{Value: 32, Valid: true}, Minima: flexFloat{Value: 18, Valid: true}},
		HumedadRelativa: aemetRange{Maxima: flexFloat{Value: 70, Valid: true}, Minima: flexFloat{Value: 30, Valid: true}},
	}

	samples := aemetDailySamples(quarters, madrid)

	require.Len(t, samples, 4)
	assert.Equal(t, time.Date(2024, 6, 11, 22, 0, 0, 0, time.UTC), samples[0].Time)
	assert.Equal(t, 6*time.Hour, samples[0].BlockDuration)
	assert.Equal(t, models.ClearSkyNight, samples[0].WeatherCode)
	assert.Equal(t, 32.0, samples[2].Temperature)
	assert.InDelta(t, 5.0, samples[2].WindSpeed, 1e-9)
	assert.Equal(t, 90.0, samples[2].WindDirection)
	assert.Equal(t, models.RainThunder, samples[2].WeatherCode)
	assert.Equal(t, 60.0, *samples[2].ThunderProbability)
	assert.Equal(t, 7.2, samples[2].Precipitation)
	assert.Equal(t, 50.0, samples[2].Humidity)
	assert.Equal(t, models.Cloudy, samples[3].WeatherCode)

	later := aemetDailyDay{
		Fecha:             "2024-06-15T00:00:00",
		ProbPrecipitacion: []aemetValue{{Value: flexFloat{Value: 5, Valid: true}}},
		EstadoCielo:       []aemetSky{{Value: "13"}},
		Temperatura:       aemetRange{Maxima: flexFloat{Value: 30, Valid: true}, Minima: flexFloat{Value: 17, Valid: true}},
	}

	samples = aemetDailySamples(later, madrid)

	require.Len(t, samples, 1)
	assert.Equal(t, 24*time.Hour, samples[0].BlockDuration)
	assert.Equal(t, models.PartlyCloudyDay, samples[0].WeatherCode)
	assert.Equal(t, 5.0, samples[0].PrecipitationProbability)
}

func TestInRange(t *testing.T) {
	assert.True(t, inRange("0814", 8))
	assert.False(t, inRange("0814", 14))
	assert.True(t, inRange("2002", 23))
	assert.True(t, inRange("2002", 1))
	assert.False(t, inRange("2002", 2))
	assert.False(t, inRange("bad", 2))
}
