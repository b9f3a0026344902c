package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/catchup/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/providers/pdf"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	sequencedomain "github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Engine    *config.EngineConfigHolder
	Schedules scheduledomain.Repository
	Instances instancedomain.Repository
	Allocator sequencedomain.Allocator
	AuditSvc  auditdomain.Service
	Renderer  pdf.Renderer
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	engine    *config.EngineConfigHolder
	schedules scheduledomain.Repository
	instances instancedomain.Repository
	allocator sequencedomain.Allocator
	auditSvc  auditdomain.Service
	renderer  pdf.Renderer
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Generator {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("catchup.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		engine:    p.Engine,
		schedules: p.Schedules,
		instances: p.Instances,
		allocator: p.Allocator,
		auditSvc:  p.AuditSvc,
		renderer:  p.Renderer,
		metrics:   p.Metrics,
	}
}

func (s *Service) GenerateDue(ctx context.Context, tx *gorm.DB, schedule scheduledomain.Schedule, asOf time.Time) ([]instancedomain.Instance, error) {
	if tx == nil {
		return nil, domain.ErrTransactionRequired
	}
	locked, err := s.schedules.LockByID(ctx, tx, schedule.ID)
	if err != nil {
		return nil, errors.Wrap(err, "lock schedule")
	}
	if locked == nil {
		return nil, scheduledomain.ErrScheduleNotFound
	}
	if !locked.IsActive() {
		return nil, nil
	}
	return s.generate(ctx, tx, *locked, asOf)
}

// generate expects the schedule row to be locked by the caller.
func (s *Service) generate(ctx context.Context, tx *gorm.DB, schedule scheduledomain.Schedule, asOf time.Time) ([]instancedomain.Instance, error) {
	if !schedule.Cadence.Recurring() {
		return nil, domain.ErrNotRecurring
	}

	anchor := instancedomain.Date(schedule.AnchorDate)
	asOf = instancedomain.Date(asOf)
	if asOf.Before(anchor) {
		return nil, nil
	}
	// One period of look-ahead: the first due date after asOf is billed too.
	// It is counted from the anchor so clamped month ends do not shorten it.
	horizon, _ := schedule.Cadence.FirstAfter(anchor, asOf)
	now := s.clock.Now().UTC()
	amount := schedule.Amount()

	var created []instancedomain.Instance
	for k := 0; ; k++ {
		due := schedule.Cadence.DueDate(anchor, k)
		if due.After(horizon) {
			break
		}

		exists, err := s.instances.ExistsForDueDate(ctx, tx, schedule.ID, due)
		if err != nil {
			return nil, errors.Wrap(err, "check existing instance")
		}
		if exists {
			continue
		}

		inst := instancedomain.Instance{
			ID:            s.genID.Generate(),
			ScheduleID:    lo.ToPtr(schedule.ID),
			CustomerRef:   schedule.CustomerRef,
			ProductRef:    schedule.ProductRef,
			Quantity:      schedule.Quantity,
			UnitPrice:     schedule.UnitPrice,
			DueDate:       due,
			Amount:        amount,
			PaidAmount:    decimal.Zero,
			Balance:       amount,
			PaymentStatus: instancedomain.PaymentStatusNotPaid,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := inst.CheckInvariant(); err != nil {
			return nil, err
		}

		docID, err := s.allocator.Issue(ctx, tx, "", sequencedomain.KindInstance, &inst.ID)
		if err != nil {
			return nil, err
		}
		inst.DocumentID = docID.String()

		if err := s.instances.Insert(ctx, tx, &inst); err != nil {
			return nil, errors.Wrapf(db.Classify(err), "insert instance due %s", due.Format(time.DateOnly))
		}
		created = append(created, inst)
	}
	return created, nil
}

func (s *Service) RunCatchUp(ctx context.Context, scheduleID string, asOf time.Time) (domain.RunResult, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(scheduleID))
	if err != nil || id == 0 {
		return domain.RunResult{}, scheduledomain.ErrInvalidID
	}
	if asOf.IsZero() {
		asOf = s.clock.Now().In(s.engine.Get().Location())
	}
	return s.runCatchUp(ctx, id, asOf, domain.SourceCatchUp)
}

func (s *Service) runCatchUp(ctx context.Context, id snowflake.ID, asOf time.Time, source domain.Source) (domain.RunResult, error) {
	var result domain.RunResult
	err := db.RetryTx(ctx, s.db, s.retryPolicy(ctx, string(source)), func(tx *gorm.DB) error {
		schedule, err := s.schedules.LockByID(ctx, tx, id)
		if err != nil {
			return errors.Wrap(err, "lock schedule")
		}
		if schedule == nil {
			return scheduledomain.ErrScheduleNotFound
		}
		if !schedule.IsActive() {
			return scheduledomain.ErrScheduleSuperseded
		}

		instances, err := s.generate(ctx, tx, *schedule, asOf)
		if err != nil {
			return err
		}
		result = domain.RunResult{Schedule: *schedule, Instances: instances}
		return nil
	})
	if err != nil {
		return domain.RunResult{}, err
	}

	s.log.Info("catch-up finished",
		zap.String("schedule_id", id.String()),
		zap.String("source", string(source)),
		zap.Time("as_of", asOf),
		zap.Int("generated", len(result.Instances)),
	)
	s.Publish(ctx, source, result.Schedule, result.Instances)
	return result, nil
}

func (s *Service) Sweep(ctx context.Context, asOf time.Time) (domain.SweepResult, error) {
	cfg := s.engine.Get()
	if asOf.IsZero() {
		asOf = s.clock.Now().In(cfg.Location())
	}

	ids, err := s.schedules.ListActiveIDs(ctx, s.db)
	if err != nil {
		return domain.SweepResult{}, errors.Wrap(err, "list active schedules")
	}

	p := pool.NewWithResults[domain.ScheduleOutcome]().
		WithContext(ctx).
		WithMaxGoroutines(cfg.Sweep.Concurrency)
	for _, id := range ids {
		p.Go(func(ctx context.Context) (domain.ScheduleOutcome, error) {
			res, err := s.runCatchUp(ctx, id, asOf, domain.SourceSweep)
			switch {
			case errors.Is(err, scheduledomain.ErrScheduleSuperseded):
				// Superseded after it was listed.
				return domain.ScheduleOutcome{ScheduleID: id, Skipped: true}, nil
			case err != nil:
				return domain.ScheduleOutcome{ScheduleID: id}, errors.Wrapf(err, "schedule %s", id)
			}
			return domain.ScheduleOutcome{ScheduleID: id, Generated: len(res.Instances)}, nil
		})
	}
	outcomes, err := p.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].ScheduleID < outcomes[j].ScheduleID })
	result := domain.SweepResult{
		AsOf:      instancedomain.Date(asOf),
		Schedules: len(ids),
		Generated: lo.SumBy(outcomes, func(o domain.ScheduleOutcome) int { return o.Generated }),
		Outcomes:  outcomes,
	}
	if err != nil {
		s.log.Warn("sweep finished with errors", zap.Int("schedules", len(ids)), zap.Error(err))
		return result, err
	}
	s.log.Info("sweep finished", zap.Int("schedules", len(ids)), zap.Int("generated", result.Generated))
	return result, nil
}

func (s *Service) Publish(ctx context.Context, source domain.Source, schedule scheduledomain.Schedule, instances []instancedomain.Instance) {
	if len(instances) == 0 {
		return
	}
	s.metrics.RecordInstancesGenerated(ctx, string(source), len(instances))

	now := s.clock.Now()
	account := pdf.AccountFromSchedule(schedule)
	for _, inst := range instances {
		if _, err := s.renderer.RenderInvoice(ctx, pdf.InvoiceFor(inst, now, account)); err != nil {
			s.log.Warn("invoice render failed", zap.String("document_id", inst.DocumentID), zap.Error(err))
		}
		_ = s.auditSvc.Record(ctx, auditdomain.ActionInstanceCreated, auditdomain.TargetInstance, inst.DocumentID, map[string]any{
			"instance_id":          inst.ID.String(),
			"schedule_id":          schedule.ID.String(),
			"schedule_document_id": schedule.DocumentID,
			"due_date":             inst.DueDate.Format(time.DateOnly),
			"amount":               inst.Amount.String(),
			"source":               string(source),
		})
	}
}

func (s *Service) retryPolicy(ctx context.Context, operation string) db.RetryPolicy {
	policy := db.DefaultRetryPolicy(s.engine.Get().MaxTxAttempts)
	policy.OnRetry = func(err error, wait time.Duration) {
		s.metrics.RecordTxRetry(ctx, operation)
		s.log.Warn("retrying conflicting transaction",
			zap.String("operation", operation),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return policy
}
