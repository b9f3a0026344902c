package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	catchupdomain "github.com/smallbiznis/backoffice/internal/catchup/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/internal/observability/errorreport"
	obsmetrics "github.com/smallbiznis/backoffice/internal/observability/metrics"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGenerator struct {
	calls atomic.Int32
	sweep func(ctx context.Context) (catchupdomain.SweepResult, error)
}

func (f *fakeGenerator) GenerateDue(context.Context, *gorm.DB, scheduledomain.Schedule, time.Time) ([]instancedomain.Instance, error) {
	return nil, nil
}

func (f *fakeGenerator) RunCatchUp(context.Context, string, time.Time) (catchupdomain.RunResult, error) {
	return catchupdomain.RunResult{}, nil
}

func (f *fakeGenerator) Sweep(ctx context.Context, _ time.Time) (catchupdomain.SweepResult, error) {
	f.calls.Add(1)
	if f.sweep == nil {
		return catchupdomain.SweepResult{}, nil
	}
	return f.sweep(ctx)
}

func (f *fakeGenerator) Publish(context.Context, catchupdomain.Source, scheduledomain.Schedule, []instancedomain.Instance) {
}

func newTestScheduler(t *testing.T, gen catchupdomain.Generator, lease Lease, sweep config.SweepConfig) (*Scheduler, *prometheus.Registry) {
	t.Helper()

	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	m, err := obsmetrics.NewSweepMetrics(obsmetrics.Config{ServiceName: "backoffice", Environment: "test"})
	if err != nil {
		t.Fatalf("sweep metrics: %v", err)
	}

	engine := config.DefaultEngineConfig()
	engine.Sweep = sweep
	s, err := New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)),
		Engine:    config.NewStaticEngineConfig(engine),
		Generator: gen,
		Lease:     lease,
		Metrics:   m,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, registry
}

func defaultSweep() config.SweepConfig {
	return config.SweepConfig{Enabled: true, Interval: time.Hour, Concurrency: 2, Timeout: time.Minute}
}

func TestRunOnceRecordsSweep(t *testing.T) {
	gen := &fakeGenerator{sweep: func(context.Context) (catchupdomain.SweepResult, error) {
		return catchupdomain.SweepResult{
			Schedules: 2,
			Generated: 3,
			Outcomes:  []catchupdomain.ScheduleOutcome{{Generated: 1}, {Generated: 2}},
		}, nil
	}}
	s, registry := newTestScheduler(t, gen, NewLocalLease(clock.NewFakeClock(time.Now())), defaultSweep())

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Generated != 3 {
		t.Fatalf("expected 3 generated, got %d", res.Generated)
	}

	labels := map[string]string{"service": "backoffice", "env": "test"}
	if got := getCounterValue(t, registry, "backoffice_sweep_instances_generated_total", labels); got != 3 {
		t.Fatalf("expected 3 instances counted, got %v", got)
	}
	if got := getCounterValue(t, registry, "backoffice_sweep_schedules_processed_total", labels); got != 2 {
		t.Fatalf("expected 2 schedules counted, got %v", got)
	}
	runLabels := map[string]string{"service": "backoffice", "env": "test", "outcome": runOutcomeSuccess}
	if got := getCounterValue(t, registry, "backoffice_sweep_runs_total", runLabels); got != 1 {
		t.Fatalf("expected 1 successful run, got %v", got)
	}
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if err := mr.Set(defaultLeaseKey, "other-replica"); err != nil {
		t.Fatalf("seed lease: %v", err)
	}

	gen := &fakeGenerator{}
	s, registry := newTestScheduler(t, gen, NewRedisLease(client), defaultSweep())

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gen.calls.Load() != 0 {
		t.Fatalf("expected no sweep while the lease is held elsewhere")
	}
	labels := map[string]string{"service": "backoffice", "env": "test"}
	if got := getCounterValue(t, registry, "backoffice_sweep_lease_skipped_total", labels); got != 1 {
		t.Fatalf("expected 1 skipped tick, got %v", got)
	}
	if got, _ := mr.Get(defaultLeaseKey); got != "other-replica" {
		t.Fatalf("foreign lease must survive, got %q", got)
	}
}

func TestRunOnceReleasesLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gen := &fakeGenerator{}
	s, _ := newTestScheduler(t, gen, NewRedisLease(client), defaultSweep())

	for i := 0; i < 2; i++ {
		if _, err := s.RunOnce(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if gen.calls.Load() != 2 {
		t.Fatalf("expected 2 sweeps, got %d", gen.calls.Load())
	}
	if mr.Exists(defaultLeaseKey) {
		t.Fatalf("lease must be released after the run")
	}
}

func TestRunOnceTimeoutIsSoft(t *testing.T) {
	gen := &fakeGenerator{sweep: func(ctx context.Context) (catchupdomain.SweepResult, error) {
		<-ctx.Done()
		return catchupdomain.SweepResult{}, ctx.Err()
	}}
	sweep := defaultSweep()
	sweep.Timeout = 5 * time.Millisecond
	s, registry := newTestScheduler(t, gen, NewLocalLease(clock.NewFakeClock(time.Now())), sweep)

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	errorLabels := map[string]string{
		"service": "backoffice",
		"env":     "test",
		"reason":  obsmetrics.SweepReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "backoffice_sweep_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected 1 deadline error, got %v", got)
	}
	runLabels := map[string]string{"service": "backoffice", "env": "test", "outcome": runOutcomeTimeout}
	if got := getCounterValue(t, registry, "backoffice_sweep_runs_total", runLabels); got != 1 {
		t.Fatalf("expected 1 timed out run, got %v", got)
	}
}

func TestRunOnceReturnsSweepErrors(t *testing.T) {
	boom := errs.Conflict("document_id_allocation_exhausted")
	gen := &fakeGenerator{sweep: func(context.Context) (catchupdomain.SweepResult, error) {
		return catchupdomain.SweepResult{}, boom
	}}
	s, registry := newTestScheduler(t, gen, NewLocalLease(clock.NewFakeClock(time.Now())), defaultSweep())

	_, err := s.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected sweep error, got %v", err)
	}
	errorLabels := map[string]string{"service": "backoffice", "env": "test", "reason": obsmetrics.SweepReasonConflict}
	if got := getCounterValue(t, registry, "backoffice_sweep_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected 1 conflict error, got %v", got)
	}
}

func TestRunOnceReportsSweepErrors(t *testing.T) {
	var reported []*sentry.Event
	reporter, err := errorreport.NewReporter(errorreport.Options{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			reported = append(reported, event)
			return nil
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("reporter: %v", err)
	}

	gen := &fakeGenerator{sweep: func(context.Context) (catchupdomain.SweepResult, error) {
		return catchupdomain.SweepResult{}, errs.Integrity("ledger_mismatch")
	}}
	s, _ := newTestScheduler(t, gen, NewLocalLease(clock.NewFakeClock(time.Now())), defaultSweep())
	s.reporter = reporter

	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected sweep error")
	}
	if len(reported) != 1 {
		t.Fatalf("expected 1 reported event, got %d", len(reported))
	}
	if got := reported[0].Tags["component"]; got != "scheduler" {
		t.Fatalf("expected scheduler tag, got %q", got)
	}
}

func TestNextDelay(t *testing.T) {
	now := time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

	s, _ := newTestScheduler(t, &fakeGenerator{}, NewLocalLease(clock.NewFakeClock(now)), defaultSweep())
	if got := s.nextDelay(now); got != time.Hour {
		t.Fatalf("expected interval delay, got %v", got)
	}

	sweep := defaultSweep()
	sweep.Cron = "0 2 * * *"
	s, _ = newTestScheduler(t, &fakeGenerator{}, NewLocalLease(clock.NewFakeClock(now)), sweep)
	if got := s.nextDelay(now); got != 17*time.Hour {
		t.Fatalf("expected delay until 02:00, got %v", got)
	}

	// Nairobi is UTC+3, so 02:00 local is 23:00 UTC the same day.
	engine := config.DefaultEngineConfig()
	engine.Timezone = "Africa/Nairobi"
	engine.Sweep = sweep
	s.engine = config.NewStaticEngineConfig(engine)
	if got := s.nextDelay(now); got != 14*time.Hour {
		t.Fatalf("expected delay until 02:00 Nairobi, got %v", got)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
