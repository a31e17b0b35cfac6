package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const defaultInterval = time.Minute

type jobMetrics interface {
	ObserveDuration(job string, duration time.Duration)
	IncSuccess(job string)
	IncFailure(job string)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Metrics  jobMetrics
	Interval time.Duration
	// RunOnStart executes a cycle before the first tick.
	RunOnStart bool
}

// Service runs every registered job, in order, once per interval. Cycles
// never overlap: a slow cycle delays the next tick.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	names      []string
	metrics    jobMetrics
	interval   time.Duration
	runOnStart bool
}

var errNoJobs = errors.New("cron: at least one job required")

func NewService(params ServiceParams) (*Service, error) {
	if params.Registry == nil || len(params.Registry.Jobs()) == 0 {
		return nil, errNoJobs
	}
	svc := &Service{
		logg:       params.Logger,
		jobs:       params.Registry.Jobs(),
		names:      params.Registry.Names(),
		metrics:    params.Metrics,
		interval:   params.Interval,
		runOnStart: params.RunOnStart,
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.metrics == nil {
		svc.metrics = (*metrics.JobMetrics)(nil)
	}
	return svc, nil
}

// Run blocks until ctx is canceled and returns ctx.Err(). Job failures are
// logged and counted, never returned.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"jobs": s.names, "interval": s.interval.String()}), "cron.start")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		_ = s.RunOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stop")
			return ctx.Err()
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce runs each job a single time and combines their errors.
func (s *Service) RunOnce(ctx context.Context) error {
	var errs error
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", name, rec)
		}
		elapsed := time.Since(start)
		s.metrics.ObserveDuration(name, elapsed)
		ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.metrics.IncFailure(name)
			s.logg.Error(ctx, "cron.job_failed", err)
			return
		}
		s.metrics.IncSuccess(name)
		s.logg.Debug(ctx, "cron.job_done")
	}()

	return job.Run(ctx)
}
