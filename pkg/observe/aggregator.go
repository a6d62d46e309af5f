package observe

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"weather-router/pkg/logger"
)

const signatureFrames = 2

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// ErrorGroup is one bucket of identical failures.
type ErrorGroup struct {
	Service   string    `json:"service"`
	Message   string    `json:"message"`
	Signature string    `json:"signature"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ErrorAggregator groups failures by message, service and stack signature and reports
// them in batches instead of one log line per failure.
type ErrorAggregator struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	l          *logger.Logger
	metrics    *Metrics
	interval   time.Duration
	lastReport time.Time
	groups     map[string]*ErrorGroup
}

func NewErrorAggregator(l *logger.Logger, clock clockwork.Clock, interval time.Duration, metrics *Metrics) *ErrorAggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ErrorAggregator{
		clock:      clock,
		l:          l,
		metrics:    metrics,
		interval:   interval,
		lastReport: clock.Now(),
		groups:     make(map[string]*ErrorGroup),
	}
}

// Record adds err to its group. Once the report interval has passed the groups are flushed.
func (a *ErrorAggregator) Record(service string, err error) {
	if err == nil {
		return
	}

	now := a.clock.Now()
	msg := err.Error()
	sig := StackSignature(err)
	key := service + "\x00" + msg + "\x00" + sig

	a.mu.Lock()
	g, ok := a.groups[key]
	if !ok {
		g = &ErrorGroup{Service: service, Message: msg, Signature: sig, FirstSeen: now}
		a.groups[key] = g
	}
	g.Count++
	g.LastSeen = now
	due := a.interval > 0 && now.Sub(a.lastReport) >= a.interval
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ErrorsRecorded.WithLabelValues(service).Inc()
	}

	if due {
		a.Flush()
	}
}

// Groups returns a snapshot ordered by service then first occurrence.
func (a *ErrorAggregator) Groups() []ErrorGroup {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshot()
}

func (a *ErrorAggregator) snapshot() []ErrorGroup {
	out := make([]ErrorGroup, 0, len(a.groups))
	for _, g := range a.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// Flush logs one line per group, resets the groups and returns how many were reported.
func (a *ErrorAggregator) Flush() int {
	a.mu.Lock()
	groups := a.snapshot()
	a.groups = make(map[string]*ErrorGroup)
	a.lastReport = a.clock.Now()
	a.mu.Unlock()

	for _, g := range groups {
		a.l.Error(errors.New(g.Message), map[string]any{
			"service":    g.Service,
			"count":      g.Count,
			"signature":  g.Signature,
			"first_seen": g.FirstSeen.UTC().Format(time.RFC3339),
			"last_seen":  g.LastSeen.UTC().Format(time.RFC3339),
		})
	}

	return len(groups)
}

// StackSignature hashes the top frames of the first pkg/errors stack in err's chain.
// Errors without a recorded stack share the empty signature.
func StackSignature(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		return ""
	}

	frames := st.StackTrace()
	if len(frames) > signatureFrames {
		frames = frames[:signatureFrames]
	}
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, fmt.Sprintf("%n:%d", f, f))
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(names, ">")))
	return fmt.Sprintf("%016x", h.Sum64())
}
