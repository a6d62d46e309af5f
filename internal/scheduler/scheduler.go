package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"

	"weather-router/internal/models"
	"weather-router/pkg/logger"
	"weather-router/pkg/observe"
)

// Cache is the part of the response cache the maintenance jobs need.
type Cache interface {
	Prune(retention time.Duration) (int, error)
	Entries() ([]models.CacheEntry, error)
}

// Flusher reports and resets aggregated errors.
type Flusher interface {
	Flush() int
}

// Config holds the job intervals. A zero interval disables the job.
type Config struct {
	FlushInterval  time.Duration
	PruneInterval  time.Duration
	StaleRetention time.Duration
}

// Scheduler runs the periodic maintenance jobs of the serve mode.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cache     Cache
	errs      Flusher
	metrics   *observe.Metrics
	cfg       Config
	l         *logger.Logger
}

func New(cfg Config, cache Cache, errs Flusher, metrics *observe.Metrics, l *logger.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cache:     cache,
		errs:      errs,
		metrics:   metrics,
		cfg:       cfg,
		l:         l,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.cfg.FlushInterval > 0 && s.errs != nil {
		if _, err := s.scheduler.Every(s.cfg.FlushInterval).WaitForSchedule().Do(s.FlushErrors); err != nil {
			return err
		}
	}
	if s.cfg.PruneInterval > 0 && s.cache != nil {
		if _, err := s.scheduler.Every(s.cfg.PruneInterval).Do(s.PruneCache); err != nil {
			return err
		}
	}

	if len(s.scheduler.Jobs()) == 0 {
		s.l.Info("scheduler: nothing to schedule")
		return nil
	}

	s.scheduler.StartAsync()
	s.l.Info("scheduler started", map[string]any{
		"flush_interval": s.cfg.FlushInterval.String(),
		"prune_interval": s.cfg.PruneInterval.String(),
	})
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// FlushErrors emits the aggregated error groups.
func (s *Scheduler) FlushErrors() {
	if n := s.errs.Flush(); n > 0 {
		s.l.Info("error groups reported", map[string]any{"groups": n})
	}
}

// PruneCache drops entries expired longer than the retention and refreshes the entry gauge.
func (s *Scheduler) PruneCache() {
	removed, err := s.cache.Prune(s.cfg.StaleRetention)
	if err != nil {
		s.l.Error(err, map[string]any{"job": "prune_cache"})
		return
	}

	entries, err := s.cache.Entries()
	if err != nil {
		s.l.Error(err, map[string]any{"job": "prune_cache"})
		return
	}
	if s.metrics != nil {
		s.metrics.CacheEntries.Set(float64(len(entries)))
	}

	s.l.Info("cache pruned", map[string]any{"removed": removed, "remaining": len(entries)})
}
