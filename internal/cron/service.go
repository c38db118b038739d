package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/greenline-backend/pkg/logger"
)

const defaultInterval = 5 * time.Minute

// JobMetrics receives one observation per job run.
type JobMetrics interface {
	ObserveRun(job string, elapsed time.Duration, err error)
	IncSkippedCycle()
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  JobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while it holds the
// leader lease. The lease is renewed each cycle and dropped on shutdown.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  JobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("cron: logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("cron: lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.registry == nil {
		svc.registry = &Registry{}
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer s.releaseLease(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle returns an error only when leadership could not be determined.
// Job failures are logged and counted; one failing job never stops the rest.
func (s *Service) runCycle(ctx context.Context) error {
	leader, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire leader lease: %w", err)
	}
	if !leader {
		s.logg.Info(ctx, "cron.cycle.skipped")
		if s.metrics != nil {
			s.metrics.IncSkippedCycle()
		}
		return nil
	}

	ctx = s.logg.WithField(ctx, "jobs", s.registry.Names())
	started := time.Now()
	var failures error
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		failures = multierr.Append(failures, s.runJob(ctx, job))
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"failed":      len(multierr.Errors(failures)),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	s.logg.Info(ctx, "cron.cycle.complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)
	started := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveRun(name, elapsed, err)
	}

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job.failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(ctx, "cron.job.complete")
	return nil
}

func (s *Service) releaseLease(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.lock.Release(releaseCtx); err != nil {
		s.logg.Error(releaseCtx, "cron.lease.release_failed", err)
	}
}
