package http

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"weather-router/internal/models"
)

const defaultWindow = 24 * time.Hour

// WeatherResponse is the forecast with its rendered summary.
type WeatherResponse struct {
	models.WeatherResponse
	Summary string `json:"summary" example:"Mon 10 09:00 ⛅ 14°C 4 m/s SW"`
}

// CacheEntry describes one stored provider payload without the payload itself.
type CacheEntry struct {
	Provider     string    `json:"provider" example:"nordic"`
	Latitude     float64   `json:"latitude" example:"60.1699"`
	Longitude    float64   `json:"longitude" example:"24.9384"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Location     string    `json:"location,omitempty" example:"Vantaa"`
	Size         int       `json:"size" example:"18342"`
	Expires      time.Time `json:"expires"`
	LastModified time.Time `json:"last_modified"`
	Created      time.Time `json:"created"`
	Expired      bool      `json:"expired"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error" example:"lat must be a valid latitude"`
}

type weatherQuery struct {
	Lat   string `query:"lat" validate:"required,latitude"`
	Lon   string `query:"lon" validate:"required,longitude"`
	Start string `query:"start" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	End   string `query:"end" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// GetWeather godoc
// @Summary Get weather forecast
// @Description Returns the normalized forecast for a point from the provider covering it, with a text summary.
// @Description The window defaults to the next 24 hours.
// @Tags Weather
// @Produce json
// @Param lat query number true "Latitude (-90 to 90)" example(60.1699)
// @Param lon query number true "Longitude (-180 to 180)" example(24.9384)
// @Param start query string false "Window start, RFC 3339" example(2026-06-01T00:00:00Z)
// @Param end query string false "Window end, RFC 3339, exclusive" example(2026-06-02T00:00:00Z)
// @Success 200 {object} WeatherResponse "Forecast"
// @Success 204 "No provider could serve the request"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Router /weather [get]
//
//	curl -X GET "http://localhost:8080/weather?lat=60.1699&lon=24.9384"
func (r *routes) handleWeatherCall(c *fiber.Ctx) error {
	var q weatherQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "malformed query")
	}
	if err := r.validate.Struct(q); err != nil {
		return badRequest(c, validationMessage(err))
	}

	lat, _ := strconv.ParseFloat(q.Lat, 64)
	lon, _ := strconv.ParseFloat(q.Lon, 64)

	start := r.clock.Now().UTC().Truncate(time.Hour)
	if q.Start != "" {
		start, _ = time.Parse(time.RFC3339, q.Start)
	}
	end := start.Add(defaultWindow)
	if q.End != "" {
		end, _ = time.Parse(time.RFC3339, q.End)
	}

	resp, err := r.router.GetWeather(c.UserContext(), lat, lon, start, end)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return badRequest(c, err.Error())
		}
		r.l.Error(err, map[string]any{"lat": lat, "lon": lon})
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "Failed to fetch weather data",
		})
	}
	if resp == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(WeatherResponse{
		WeatherResponse: *resp,
		Summary:         r.router.Summarize(resp, start, end),
	})
}

// ListCacheEntries godoc
// @Summary List cached responses
// @Tags Cache
// @Produce json
// @Success 200 {array} CacheEntry
// @Failure 500 {object} ErrorResponse
// @Router /cache/entries [get]
func (r *routes) handleCacheEntries(c *fiber.Ctx) error {
	entries, err := r.router.CacheEntries()
	if err != nil {
		r.l.Error(err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "Failed to read the cache",
		})
	}

	now := r.clock.Now()
	out := make([]CacheEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, CacheEntry{
			Provider:     e.Provider,
			Latitude:     e.Latitude,
			Longitude:    e.Longitude,
			WindowStart:  e.WindowStart,
			WindowEnd:    e.WindowEnd,
			Location:     e.Location,
			Size:         len(e.RawResponse),
			Expires:      e.Expires,
			LastModified: e.LastModified,
			Created:      e.Created,
			Expired:      e.Expired(now),
		})
	}

	return c.JSON(out)
}

// ClearCache godoc
// @Summary Clear cached responses
// @Description Drops the entries of one provider, or every entry when provider is omitted.
// @Tags Cache
// @Param provider query string false "Provider name" example(nordic)
// @Success 204
// @Failure 400 {object} ErrorResponse "Unknown provider"
// @Router /cache [delete]
func (r *routes) handleClearCache(c *fiber.Ctx) error {
	err := r.router.ClearCache(c.Query("provider"))
	if errors.Is(err, models.ErrInvalidInput) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		r.l.Error(err, map[string]any{"provider": c.Query("provider")})
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "Failed to clear the cache",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ListProviders godoc
// @Summary List configured providers
// @Tags Weather
// @Produce json
// @Success 200 {array} string
// @Router /providers [get]
func (r *routes) handleProviders(c *fiber.Ctx) error {
	return c.JSON(r.router.Providers())
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, "missing required parameter: "+fe.Field())
		case "datetime":
			msgs = append(msgs, fe.Field()+" must be an RFC 3339 timestamp")
		default:
			msgs = append(msgs, fe.Field()+" must be a valid "+fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}
