package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	catchupdomain "github.com/smallbiznis/backoffice/internal/catchup/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/observability/errorreport"
	obsmetrics "github.com/smallbiznis/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	runOutcomeSuccess = "success"
	runOutcomeError   = "error"
	runOutcomeTimeout = "timeout"
	runOutcomeSkipped = "skipped"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Engine    *config.EngineConfigHolder
	Generator catchupdomain.Generator
	Lease     Lease
	Metrics   *obsmetrics.SweepMetrics `optional:"true"`
	Reporter  *errorreport.Reporter    `optional:"true"`
	Config    Config                   `optional:"true"`
}

// Scheduler periodically sweeps every active schedule so missed periods are
// billed even when nobody calls catch-up.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	engine    *config.EngineConfigHolder
	generator catchupdomain.Generator
	lease     Lease
	metrics   *obsmetrics.SweepMetrics
	reporter  *errorreport.Reporter
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Engine == nil || p.Generator == nil || p.Lease == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		engine:    p.Engine,
		generator: p.Generator,
		lease:     p.Lease,
		metrics:   p.Metrics,
		reporter:  p.Reporter,
	}, nil
}

// RunOnce performs one sweep if this process wins the lease. A sweep cut short
// by its timeout is logged and not reported as an error.
func (s *Scheduler) RunOnce(parent context.Context) (catchupdomain.SweepResult, error) {
	sweepCfg := s.engine.Get().Sweep
	timeout := sweepTimeout(sweepCfg)

	token, ok, err := s.lease.Acquire(parent, s.cfg.LeaseKey, timeout+s.cfg.LeaseSlack)
	if err != nil {
		s.metrics.IncError(err)
		return catchupdomain.SweepResult{}, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		s.metrics.IncLeaseSkipped()
		s.metrics.ObserveRun(runOutcomeSkipped, 0)
		s.log.Debug("sweep lease held elsewhere, skipping")
		return catchupdomain.SweepResult{}, nil
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(parent), s.cfg.LeaseKey, token); err != nil {
			s.log.Warn("release sweep lease failed", zap.Error(err))
		}
	}()

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.log.Info("sweep started", zap.Time("as_of", start))
	res, err := s.generator.Sweep(ctx, time.Time{})
	elapsed := s.clock.Now().Sub(start)
	s.metrics.AddProcessed(len(res.Outcomes), res.Generated)

	if err == nil {
		s.metrics.ObserveRun(runOutcomeSuccess, elapsed)
		s.log.Info("sweep finished",
			zap.Int("schedules", res.Schedules),
			zap.Int("generated", res.Generated),
			zap.Duration("duration", elapsed),
		)
		return res, nil
	}

	s.metrics.IncError(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.ObserveRun(runOutcomeTimeout, elapsed)
		s.log.Warn("sweep timed out",
			zap.Duration("timeout", timeout),
			zap.Int("generated", res.Generated),
			zap.Error(err),
		)
		return res, nil
	}
	s.metrics.ObserveRun(runOutcomeError, elapsed)
	s.reporter.Capture(parent, err, map[string]string{"component": "scheduler"})
	return res, fmt.Errorf("sweep: %w", err)
}

// RunForever sweeps once at start and then on the configured cadence until
// ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		timer.Reset(s.nextDelay(s.clock.Now()))
	}
}

// nextDelay follows engine.sweep.cron when set and the fixed interval
// otherwise. It is re-read every run so config reloads apply.
func (s *Scheduler) nextDelay(now time.Time) time.Duration {
	engineCfg := s.engine.Get()
	sweepCfg := engineCfg.Sweep
	if sweepCfg.Cron == "" {
		return sweepInterval(sweepCfg)
	}

	sched, err := sweepCfg.Schedule()
	if err != nil {
		s.log.Warn("invalid sweep cron, using interval", zap.String("cron", sweepCfg.Cron), zap.Error(err))
		return sweepInterval(sweepCfg)
	}
	local := now.In(engineCfg.Location())
	if d := sched.Next(local).Sub(local); d > 0 {
		return d
	}
	return sweepInterval(sweepCfg)
}
