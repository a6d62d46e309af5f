package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMinInterval = time.Second
	DefaultCeiling     = 5 * time.Minute
)

type state struct {
	floor    time.Duration
	interval time.Duration
	lastCall time.Time
}

// Limiter spaces out calls per provider. A 429 doubles the provider's interval up to the
// ceiling; a success restores the floor. State is kept in memory only.
type Limiter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ceiling time.Duration
	floors  map[string]time.Duration
	states  map[string]*state
}

func New(clock clockwork.Clock, ceiling time.Duration, floors map[string]time.Duration) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	f := make(map[string]time.Duration, len(floors))
	for name, d := range floors {
		f[name] = d
	}
	return &Limiter{
		clock:   clock,
		ceiling: ceiling,
		floors:  f,
		states:  make(map[string]*state),
	}
}

// SetMinInterval configures the floor for a provider.
func (l *Limiter) SetMinInterval(provider string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.floors[provider] = d
	if s, ok := l.states[provider]; ok {
		s.floor = d
		if s.interval < d {
			s.interval = d
		}
	}
}

func (l *Limiter) get(provider string) *state {
	s, ok := l.states[provider]
	if !ok {
		floor, ok := l.floors[provider]
		if !ok {
			floor = DefaultMinInterval
		}
		s = &state{floor: floor, interval: floor}
		l.states[provider] = s
	}
	return s
}

// Delay reports how long the next call for provider would have to wait.
func (l *Limiter) Delay(provider string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.delay(l.get(provider))
}

func (l *Limiter) delay(s *state) time.Duration {
	if s.lastCall.IsZero() {
		return 0
	}
	wait := s.interval - l.clock.Now().Sub(s.lastCall)
	if wait < 0 {
		return 0
	}
	return wait
}

// Interval is the current spacing for provider.
func (l *Limiter) Interval(provider string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.get(provider).interval
}

// WaitIfNeeded blocks until the provider's interval has elapsed since its last call and
// then claims the slot.
func (l *Limiter) WaitIfNeeded(ctx context.Context, provider string) error {
	for {
		l.mu.Lock()
		s := l.get(provider)
		wait := l.delay(s)
		if wait == 0 {
			s.lastCall = l.clock.Now()
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// RecordRateLimited doubles the provider's interval, capped at the ceiling.
func (l *Limiter) RecordRateLimited(provider string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.get(provider)
	next := s.interval * 2
	if next <= 0 {
		next = DefaultMinInterval
	}
	if next > l.ceiling {
		next = l.ceiling
	}
	s.interval = next
	s.lastCall = l.clock.Now()
	return next
}

// RecordSuccess resets the provider's interval to its floor.
func (l *Limiter) RecordSuccess(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.get(provider)
	s.interval = s.floor
}
