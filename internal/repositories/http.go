package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"weather-router/internal/models"
	"weather-router/internal/ratelimit"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultInitialBackoff  = 500 * time.Millisecond
	defaultMaxBackoff      = 5 * time.Second
	maxRateLimitedAttempts = 3
	maxBodySize            = 16 << 20
)

var (
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type httpResult struct {
	Status int
	Header http.Header
	Body   []byte
}

// fetcher performs rate-limited GETs for one provider with retries and a circuit breaker.
type fetcher struct {
	provider string
	client   HTTPClient
	limiter  *ratelimit.Limiter
	breaker  *gobreaker.CircuitBreaker
	clock    clockwork.Clock
	l        *logger.Logger
	metrics  *observe.Metrics
	backoff  BackoffConfig
	timeout  time.Duration
	headers  map[string]string
}

func newFetcher(s Settings, deps Deps, headers map[string]string) *fetcher {
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.InitialBackoff <= 0 {
		s.InitialBackoff = defaultInitialBackoff
	}
	if s.MaxBackoff <= 0 {
		s.MaxBackoff = defaultMaxBackoff
	}
	if s.MinInterval > 0 {
		deps.Limiter.SetMinInterval(s.Name, s.MinInterval)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if deps.UserAgent != "" {
		headers["User-Agent"] = deps.UserAgent
	}

	return &fetcher{
		provider: s.Name,
		client:   deps.Client,
		limiter:  deps.Limiter,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		clock:   deps.Clock,
		l:       deps.Logger,
		metrics: deps.Metrics,
		backoff: BackoffConfig{
			MaxRetries:      s.MaxRetries,
			InitialInterval: s.InitialBackoff,
			MaxInterval:     s.MaxBackoff,
		},
		timeout: s.Timeout,
		headers: headers,
	}
}

func (f *fetcher) fail(kind, err error) error {
	return pkgerrors.WithStack(models.NewProviderError(f.provider, kind, err))
}

// get executes the request with the provider's rate limit, retries transient failures with
// exponential backoff and maps the final status onto the error taxonomy.
func (f *fetcher) get(ctx context.Context, target string) (*httpResult, error) {
	var attempt, rateLimited int

	start := f.clock.Now()
	defer func() {
		if f.metrics != nil {
			f.metrics.FetchDuration.WithLabelValues(f.provider).Observe(f.clock.Since(start).Seconds())
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil, f.fail(models.ErrProviderUnavailable, ctx.Err())
		}
		if err := f.limiter.WaitIfNeeded(ctx, f.provider); err != nil {
			return nil, f.fail(models.ErrProviderUnavailable, err)
		}

		f.l.Debug("making provider request", map[string]any{
			"provider": f.provider,
			"url":      target,
			"attempt":  attempt,
		})

		res, err := f.do(ctx, target)
		if err == nil {
			switch {
			case res.Status == http.StatusTooManyRequests:
				rateLimited++
				interval := f.limiter.RecordRateLimited(f.provider)
				if f.metrics != nil {
					f.metrics.RateLimited.WithLabelValues(f.provider).Inc()
				}
				f.l.Warning("provider rate limited", map[string]any{
					"provider": f.provider,
					"interval": interval.String(),
				})
				if rateLimited >= maxRateLimitedAttempts {
					return nil, f.fail(models.ErrRateLimited, fmt.Errorf("still rate limited after %d attempts", rateLimited))
				}
				continue
			case res.Status == http.StatusNotFound:
				return nil, f.fail(models.ErrNoCoverage, fmt.Errorf("HTTP error (status %d)", res.Status))
			case res.Status < 200 || res.Status >= 300:
				e := models.NewProviderError(f.provider, models.ErrInvalidResponse, fmt.Errorf("HTTP error (status %d)", res.Status))
				return nil, pkgerrors.WithStack(e.WithExcerpt(res.Body))
			}

			f.limiter.RecordSuccess(f.provider)
			return res, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, f.fail(models.ErrProviderUnavailable, fmt.Errorf("%w: %v", errCircuitOpen, err))
		}
		if attempt >= f.backoff.MaxRetries {
			return nil, f.fail(models.ErrProviderUnavailable, err)
		}

		delay := f.backoffDelay(attempt)
		f.l.Debug("provider request failed, retrying", map[string]any{
			"provider": f.provider,
			"attempt":  attempt,
			"delay":    delay.String(),
			"err":      err,
		})

		select {
		case <-ctx.Done():
			return nil, f.fail(models.ErrProviderUnavailable, ctx.Err())
		case <-f.clock.After(delay):
		}

		attempt++
	}
}

func (f *fetcher) backoffDelay(attempt int) time.Duration {
	delay := f.backoff.InitialInterval << attempt
	if delay > f.backoff.MaxInterval || delay <= 0 {
		delay = f.backoff.MaxInterval
	}
	return delay
}

// do runs one request through the circuit breaker. Only transport errors and 5xx count as
// breaker failures; other statuses are returned for classification.
func (f *fetcher) do(ctx context.Context, target string) (*httpResult, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range f.headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to do request: %w", withoutURL(err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", errServerError, resp.StatusCode)
		}

		return &httpResult{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*httpResult), nil
}

// withoutURL drops the request URL from transport errors. The URL carries the per-request
// query, and failures of one outage must read the same to be grouped.
func withoutURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

// parseHTTPTime reads an RFC 1123 header, returning the zero time when absent or malformed.
func parseHTTPTime(h http.Header, key string) time.Time {
	v := h.Get(key)
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
