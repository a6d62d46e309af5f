package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "weather-router/docs"
	"weather-router/internal/services/weather"
	"weather-router/pkg/logger"
)

type routes struct {
	router   *weather.Router
	validate *validator.Validate
	clock    clockwork.Clock
	l        *logger.Logger
}

// NewRouter mounts the API on app. gatherer serves /metrics; nil means the default registry.
func NewRouter(
	app *fiber.App,
	weatherRouter *weather.Router,
	gatherer prometheus.Gatherer,
	clock clockwork.Clock,
	l *logger.Logger,
) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})

	r := &routes{
		router:   weatherRouter,
		validate: v,
		clock:    clock,
		l:        l,
	}

	// Swagger documentation
	app.Get("/swagger/*", swagger.New(swagger.Config{
		URL:         "/swagger/doc.json",
		DeepLinking: true,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API routes
	app.Get("/weather", r.handleWeatherCall)
	app.Get("/providers", r.handleProviders)
	app.Get("/cache/entries", r.handleCacheEntries)
	app.Delete("/cache", r.handleClearCache)
}
