package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/backoffice/pkg/errs"
)

const (
	SweepReasonDeadlineExceeded = "deadline_exceeded"
	SweepReasonConflict         = "conflict"
	SweepReasonValidation       = "validation"
	SweepReasonNotFound         = "not_found"
	SweepReasonIntegrity        = "integrity"
	SweepReasonUnknown          = "unknown"
)

// SweepMetrics captures catch-up sweep health for the prometheus scrape endpoint.
type SweepMetrics struct {
	runs               *prometheus.CounterVec
	duration           prometheus.Histogram
	schedulesProcessed prometheus.Counter
	instancesGenerated prometheus.Counter
	errors             *prometheus.CounterVec
	leaseSkipped       prometheus.Counter
}

// NewSweepMetrics registers the sweep collectors on the default registerer.
func NewSweepMetrics(cfg Config) (*SweepMetrics, error) {
	return newSweepMetrics(prometheus.DefaultRegisterer, cfg)
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) (*SweepMetrics, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "backoffice"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "backoffice_sweep_runs_total",
			Help:        "Catch-up sweep runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "backoffice_sweep_duration_seconds",
			Help:        "Wall time of one catch-up sweep over all active schedules.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		}),
		schedulesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "backoffice_sweep_schedules_processed_total",
			Help:        "Schedules visited by the catch-up sweep.",
			ConstLabels: constLabels,
		}),
		instancesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "backoffice_sweep_instances_generated_total",
			Help:        "Billing instances created by the catch-up sweep.",
			ConstLabels: constLabels,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "backoffice_sweep_errors_total",
			Help:        "Per-schedule sweep failures by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		leaseSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "backoffice_sweep_lease_skipped_total",
			Help:        "Sweep ticks skipped because another replica held the lease.",
			ConstLabels: constLabels,
		}),
	}

	var err error
	if m.runs, err = register(registerer, m.runs); err != nil {
		return nil, err
	}
	if m.duration, err = register(registerer, m.duration); err != nil {
		return nil, err
	}
	if m.schedulesProcessed, err = register(registerer, m.schedulesProcessed); err != nil {
		return nil, err
	}
	if m.instancesGenerated, err = register(registerer, m.instancesGenerated); err != nil {
		return nil, err
	}
	if m.errors, err = register(registerer, m.errors); err != nil {
		return nil, err
	}
	if m.leaseSkipped, err = register(registerer, m.leaseSkipped); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SweepMetrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *SweepMetrics) AddProcessed(schedules, instances int) {
	if m == nil {
		return
	}
	if schedules > 0 {
		m.schedulesProcessed.Add(float64(schedules))
	}
	if instances > 0 {
		m.instancesGenerated.Add(float64(instances))
	}
}

func (m *SweepMetrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(ClassifySweepReason(err)).Inc()
}

func (m *SweepMetrics) IncLeaseSkipped() {
	if m == nil {
		return
	}
	m.leaseSkipped.Inc()
}

// register reuses an already registered collector so repeated construction shares series.
func register[T prometheus.Collector](r prometheus.Registerer, c T) (T, error) {
	if err := r.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ClassifySweepReason maps sweep errors to low-cardinality reasons.
func ClassifySweepReason(err error) string {
	switch {
	case err == nil:
		return SweepReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SweepReasonDeadlineExceeded
	case errs.IsIntegrity(err):
		return SweepReasonIntegrity
	case errs.IsConflict(err):
		return SweepReasonConflict
	case errs.IsValidation(err):
		return SweepReasonValidation
	case errs.IsNotFound(err):
		return SweepReasonNotFound
	default:
		return SweepReasonUnknown
	}
}
