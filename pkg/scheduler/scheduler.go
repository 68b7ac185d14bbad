// Package scheduler runs the periodic maintenance spec §4.4/§4.5 define
// as operations but leave to a caller to invoke on a schedule: time-series
// retention, CDC log retention, and continuous aggregate rollups.
package scheduler

import (
	"sync"
	"time"

	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/metrics"
	"github.com/rs/zerolog"
)

// AggregateJob rolls up one metric/entity series into windowMs-wide
// continuous aggregate buckets on every cycle.
type AggregateJob struct {
	Metric   string
	Entity   string
	WindowMs int64
}

// Config controls the scheduler's retention and rollup behavior. Zero
// values disable the corresponding sweep.
type Config struct {
	Interval          time.Duration
	TSRetention       time.Duration
	CDCRetentionKeep  uint64
	ContinuousAggJobs []AggregateJob
}

// Scheduler runs retention and rollup sweeps against an Engine on a
// fixed interval.
type Scheduler struct {
	eng    *engine.Engine
	cfg    Config
	logger zerolog.Logger
	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewScheduler creates a scheduler over eng. A zero cfg.Interval
// defaults to 5 seconds, matching the cadence the rest of the corpus
// schedules at.
func NewScheduler(eng *engine.Engine, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Scheduler{
		eng:    eng,
		cfg:    cfg,
		logger: log.WithComponent("scheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sweep(); err != nil {
				s.logger.Error().Err(err).Msg("maintenance sweep failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// sweep performs one maintenance cycle: time-series retention, CDC
// retention, then continuous aggregate rollups.
func (s *Scheduler) sweep() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.TSRetention > 0 {
		timer := metrics.NewTimer()
		cutoff := time.Now().Add(-s.cfg.TSRetention).UnixMilli()
		if err := s.eng.TSDeleteOld(cutoff); err != nil {
			s.logger.Error().Err(err).Msg("time-series retention sweep failed")
		}
		timer.ObserveDuration(metrics.TimeseriesRetentionDuration)
	}

	if s.cfg.CDCRetentionKeep > 0 {
		timer := metrics.NewTimer()
		if err := s.pruneCDC(); err != nil {
			s.logger.Error().Err(err).Msg("CDC retention sweep failed")
		}
		timer.ObserveDuration(metrics.CDCRetentionDuration)
	}

	for _, job := range s.cfg.ContinuousAggJobs {
		now := time.Now().UnixMilli()
		from := now - job.WindowMs
		if err := s.eng.TSContinuousAggregate(job.Metric, job.Entity, from, now, job.WindowMs); err != nil {
			s.logger.Error().
				Err(err).
				Str("metric", job.Metric).
				Str("entity", job.Entity).
				Msg("continuous aggregate rollup failed")
		}
	}

	return nil
}

// pruneCDC deletes change events older than the configured retention
// window, expressed as a count of the most recent sequences to keep.
func (s *Scheduler) pruneCDC() error {
	latest, err := s.eng.CDCLatestSequence()
	if err != nil {
		return err
	}
	if latest <= s.cfg.CDCRetentionKeep {
		return nil
	}
	return s.eng.CDCDeleteBefore(latest - s.cfg.CDCRetentionKeep)
}
