package httpserver

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"weather-router/pkg/logger"
)

// Timeouts are in seconds; zero keeps the fiber default.
type Timeouts struct {
	Read  int
	Write int
	Idle  int
}

func InitFiberServer(appName string, timeouts Timeouts, l *logger.Logger, ready func() bool) *fiber.App {
	s := fiber.New(fiber.Config{
		AppName:      appName,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		BodyLimit:    1024 * 1024,
		ReadTimeout:  time.Duration(timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(timeouts.Idle) * time.Second,
		ErrorHandler: errorHandler(l),
	})

	s.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	s.Use(cors.New())

	hc := healthcheck.Config{
		LivenessEndpoint:  "/manage/health",
		ReadinessEndpoint: "/manage/ready",
	}
	if ready != nil {
		hc.ReadinessProbe = func(*fiber.Ctx) bool { return ready() }
	}
	s.Use(healthcheck.New(hc))

	return s
}

func errorHandler(l *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError && l != nil {
			l.Error(err, map[string]any{"method": c.Method(), "path": c.Path()})
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
