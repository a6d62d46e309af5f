package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-router/config"
	v1 "weather-router/internal/controllers/http/v1"
	"weather-router/internal/locations"
	"weather-router/internal/models"
	"weather-router/internal/ratelimit"
	"weather-router/internal/repositories"
	"weather-router/internal/scheduler"
	"weather-router/internal/services/weather"
	"weather-router/internal/storage"
	"weather-router/pkg/httpserver"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

const usage = `usage: weather-router <command> [flags]

commands:
  serve                                   run the HTTP API (default)
  forecast -lat -lon [-start] [-end] [-summary]
                                          print one forecast
  cache list                              list cached responses
  cache clear [-provider name]            drop cached responses
`

// @title Weather Router API
// @version 1.0.0
// @description Regional weather forecasts from national met services with a global fallback and a durable response cache.

// @contact.name Weather Router Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @tag.name Weather
// @tag.description Weather forecast operations
// @tag.name Cache
// @tag.description Response cache maintenance
func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cnf, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// one-shot commands keep stdout for their output
	logOut := io.Writer(os.Stderr)
	if cmd == "serve" {
		logOut = os.Stdout
	}

	a, err := newApplication(cnf, logOut, cmd == "forecast")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch cmd {
	case "serve":
		err = a.serve()
	case "forecast":
		err = a.forecast(args)
	case "cache":
		err = a.cache(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", cmd)
	}

	a.close()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type application struct {
	cnf       *config.Config
	l         *logger.Logger
	sentry    *observe.SentryHook
	metrics   *observe.Metrics
	errs      *observe.ErrorAggregator
	responses *storage.ResponseCache
	places    *storage.LocationStore
	router    *weather.Router
}

// newApplication wires the stores, providers and router. With cacheOptional a cache file that
// cannot be opened leaves the application running uncached instead of failing.
func newApplication(cnf *config.Config, logOut io.Writer, cacheOptional bool) (*application, error) {
	a := &application{cnf: cnf}

	writers := []io.Writer{logOut}
	if cnf.Observe.SentryDSN != "" {
		a.sentry = observe.NewSentryHook(cnf.App.Env, cnf.App.Name, cnf.IsDevelopment(), cnf.Observe.SentryDSN)
		writers = append(writers, a.sentry)
	}
	a.l = logger.NewZapLoggerWithLevel(cnf.App.Name, cnf.App.Env, cnf.Log.Level, writers...)
	if a.sentry != nil {
		a.sentry.SetLogger(a.l)
	}

	tz, err := time.LoadLocation(cnf.Summary.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid summary timezone: %w", err)
	}

	clock := clockwork.NewRealClock()
	a.metrics = observe.NewMetrics()
	a.errs = observe.NewErrorAggregator(a.l, clock, cnf.Observe.ReportInterval, a.metrics)

	if err = os.MkdirAll(cnf.Cache.Dir, 0o755); err != nil && !cacheOptional {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	var cache weather.Cache = weather.NoCache{}
	a.responses, err = storage.NewResponseCache(cnf.Cache.Dir, cnf.Cache.OpenTimeout,
		storage.WithClock(clock),
		storage.WithPrecision(cnf.Cache.CoordinatePrecision),
	)
	switch {
	case err == nil:
		cache = a.responses
	case cacheOptional:
		a.l.Warning("response cache unavailable, running without it", map[string]any{"dir": cnf.Cache.Dir, "err": err})
	default:
		return nil, err
	}

	var places locations.Store
	a.places, err = storage.NewLocationStore(cnf.Cache.Dir, cnf.Cache.OpenTimeout,
		cnf.Cache.LocationTTL, cnf.Cache.LocationPrecision, clock)
	switch {
	case err == nil:
		places = a.places
	case cacheOptional:
		a.l.Warning("location store unavailable, running without it", map[string]any{"dir": cnf.Cache.Dir, "err": err})
	default:
		return nil, err
	}

	floors := make(map[string]time.Duration)
	for _, api := range cnf.GetWeatherAPIs() {
		floors[api.Name] = api.MinInterval
	}

	repos := repositories.InitWeatherRepositories(cnf, repositories.Deps{
		Client:   &http.Client{},
		Limiter:  ratelimit.New(clock, cnf.RateLimit.Ceiling, floors),
		Resolver: locations.NewResolver(places, 0, a.l),
		Clock:    clock,
		Logger:   a.l,
		Metrics:  a.metrics,
	})

	a.router = weather.NewRouter(repos, cache, a.l, weather.Options{
		Regions:    cnf.Weather.Regions,
		Fallback:   cnf.Weather.Fallback,
		Timezone:   tz,
		Aggregator: a.errs,
		Metrics:    a.metrics,
		Clock:      clock,
	})

	return a, nil
}

func (a *application) close() {
	a.errs.Flush()
	if a.responses != nil {
		_ = a.responses.Close()
	}
	if a.places != nil {
		_ = a.places.Close()
	}
	if a.sentry != nil {
		a.sentry.Flush()
	}
	_ = a.l.Stop()
}

func (a *application) serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := httpserver.InitFiberServer(a.cnf.App.Name, httpserver.Timeouts{
		Read:  a.cnf.Server.ReadTimeout,
		Write: a.cnf.Server.WriteTimeout,
		Idle:  a.cnf.Server.IdleTimeout,
	}, a.l, nil)

	v1.NewRouter(app, a.router, nil, nil, a.l)

	jobs := scheduler.New(scheduler.Config{
		FlushInterval:  a.cnf.Observe.ReportInterval,
		PruneInterval:  a.cnf.Observe.PruneInterval,
		StaleRetention: a.cnf.Cache.StaleRetention,
	}, a.responses, a.errs, a.metrics, a.l)
	if err := jobs.Start(); err != nil {
		return err
	}

	go func() {
		if err := app.Listen(":" + a.cnf.Server.Port); err != nil {
			a.l.Error(err, map[string]any{"msg": "cannot run the server"})
			cancel()
		}
	}()

	a.l.Info("application started successfully", map[string]any{
		"port":      a.cnf.Server.Port,
		"providers": a.router.Providers(),
	})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		a.l.Warning("stopping application services")
		signal.Stop(sigCh)
		close(sigCh)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		jobs.Stop()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	select {
	case <-sigCh:
		a.l.Info("received shutdown signal")
	case <-ctx.Done():
		return errors.New("server stopped")
	}

	return nil
}

func (a *application) forecast(args []string) error {
	fs := flag.NewFlagSet("forecast", flag.ContinueOnError)
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	start := fs.String("start", "", "window start, RFC 3339 (default: the current hour)")
	end := fs.String("end", "", "window end, RFC 3339 (default: start + 24h)")
	summary := fs.Bool("summary", false, "print the text summary instead of JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	from := time.Now().UTC().Truncate(time.Hour)
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return fmt.Errorf("%w: start: %v", models.ErrInvalidInput, err)
		}
		from = t
	}
	to := from.Add(24 * time.Hour)
	if *end != "" {
		t, err := time.Parse(time.RFC3339, *end)
		if err != nil {
			return fmt.Errorf("%w: end: %v", models.ErrInvalidInput, err)
		}
		to = t
	}

	resp, err := a.router.GetWeather(context.Background(), *lat, *lon, from, to)
	if err != nil {
		return err
	}
	if resp == nil {
		return errors.New("no forecast available")
	}

	if *summary {
		fmt.Println(a.router.Summarize(resp, from, to))
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func (a *application) cache(args []string) error {
	if len(args) == 0 {
		return errors.New("cache: expected list or clear")
	}

	switch args[0] {
	case "list":
		entries, err := a.router.CacheEntries()
		if err != nil {
			return err
		}
		now := time.Now()
		for _, e := range entries {
			state := "fresh"
			if e.Expired(now) {
				state = "expired"
			}
			fmt.Printf("%-8s %9.4f %9.4f %s..%s %7dB %s %s\n",
				e.Provider, e.Latitude, e.Longitude,
				e.WindowStart.Format(time.RFC3339), e.WindowEnd.Format(time.RFC3339),
				len(e.RawResponse), state, e.Expires.Format(time.RFC3339))
		}
		return nil
	case "clear":
		fs := flag.NewFlagSet("cache clear", flag.ContinueOnError)
		provider := fs.String("provider", "", "provider to clear (default: all)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return a.router.ClearCache(*provider)
	}

	return fmt.Errorf("cache: unknown subcommand %q", args[0])
}
