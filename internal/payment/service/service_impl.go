package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	catchupdomain "github.com/smallbiznis/backoffice/internal/catchup/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/payment/domain"
	"github.com/smallbiznis/backoffice/internal/providers/pdf"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	sequencedomain "github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomePartial = "partial"
	outcomeSettled = "settled"
	outcomeClamped = "clamped"
	outcomeEdited  = "edited"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Engine    *config.EngineConfigHolder
	Repo      domain.Repository
	Instances instancedomain.Repository
	Schedules scheduledomain.Repository
	Allocator sequencedomain.Allocator
	Generator catchupdomain.Generator
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
	repo      domain.Repository
	instances instancedomain.Repository
	schedules scheduledomain.Repository
	allocator sequencedomain.Allocator
	generator catchupdomain.Generator
	auditSvc  auditdomain.Service
	renderer  pdf.Renderer
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		engine:    p.Engine,
		repo:      p.Repo,
		instances: p.Instances,
		schedules: p.Schedules,
		allocator: p.Allocator,
		generator: p.Generator,
		auditSvc:  p.AuditSvc,
		renderer:  p.Renderer,
		metrics:   p.Metrics,
	}
}

// committed is what a payment transaction hands to the post-commit steps.
type committed struct {
	result   domain.PaymentResult
	schedule *scheduledomain.Schedule
	outcome  string
}

func (s *Service) ApplyPayment(ctx context.Context, instanceID string, req domain.PaymentRequest) (domain.PaymentResult, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(instanceID))
	if err != nil || id == 0 {
		return domain.PaymentResult{}, domain.ErrInvalidInstanceID
	}
	if err := validate(req); err != nil {
		return domain.PaymentResult{}, err
	}
	cfg := s.engine.Get()

	var out committed
	err = db.RetryTx(ctx, s.db, s.retryPolicy(ctx, "apply_payment"), func(tx *gorm.DB) error {
		inst, err := s.lockPayable(ctx, tx, id)
		if err != nil {
			return err
		}
		if inst.IsPaid() {
			return domain.ErrInstanceAlreadyPaid
		}

		applied := decimal.Min(req.Amount, inst.Balance)
		clamped := req.Amount.GreaterThan(inst.Balance)
		if clamped && cfg.OverpaymentPolicy == config.OverpaymentReject {
			return domain.ErrOverpayment
		}

		now := s.clock.Now().UTC()
		if err := inst.Settle(inst.PaidAmount.Add(applied), now); err != nil {
			return err
		}

		payment := domain.Payment{
			ID:             s.genID.Generate(),
			InstanceID:     inst.ID,
			AmountTendered: req.Amount,
			AmountApplied:  applied,
			PaymentDate:    instancedomain.Date(req.PaymentDate),
			BalanceAfter:   inst.Balance,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		receipt, err := s.allocator.Issue(ctx, tx, "", sequencedomain.KindReceipt, &payment.ID)
		if err != nil {
			return err
		}
		payment.DocumentID = receipt.String()

		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return errors.Wrap(db.Classify(err), "insert payment")
		}
		if err := s.instances.UpdateSettlement(ctx, tx, inst); err != nil {
			return errors.Wrap(db.Classify(err), "update instance settlement")
		}

		schedule, successors, err := s.generateSuccessor(ctx, tx, *inst)
		if err != nil {
			return err
		}

		out = committed{
			result: domain.PaymentResult{
				Payment:    payment,
				Instance:   *inst,
				Successors: successors,
			},
			schedule: schedule,
			outcome:  lo.Ternary(clamped, outcomeClamped, lo.Ternary(inst.IsPaid(), outcomeSettled, outcomePartial)),
		}
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.log.Info("payment applied",
		zap.String("instance_id", out.result.Instance.ID.String()),
		zap.String("receipt", out.result.Payment.DocumentID),
		zap.String("applied", out.result.Payment.AmountApplied.String()),
		zap.String("balance", out.result.Instance.Balance.String()),
		zap.String("outcome", out.outcome),
		zap.Int("successors", len(out.result.Successors)),
	)
	s.publish(ctx, auditdomain.ActionPaymentApplied, out)
	return out.result, nil
}

func (s *Service) EditLatestPayment(ctx context.Context, paymentID string, req domain.PaymentRequest) (domain.PaymentResult, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil || id == 0 {
		return domain.PaymentResult{}, domain.ErrInvalidID
	}
	if err := validate(req); err != nil {
		return domain.PaymentResult{}, err
	}
	cfg := s.engine.Get()

	var out committed
	err = db.RetryTx(ctx, s.db, s.retryPolicy(ctx, "edit_payment"), func(tx *gorm.DB) error {
		payment, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return errors.Wrap(err, "lock payment")
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}

		inst, err := s.lockPayable(ctx, tx, payment.InstanceID)
		if err != nil {
			return err
		}

		history, err := s.repo.ListByInstance(ctx, tx, inst.ID)
		if err != nil {
			return errors.Wrap(err, "list payments")
		}
		if len(history) == 0 || history[len(history)-1].ID != payment.ID {
			return domain.ErrNotLatestPayment
		}

		total := lo.Reduce(history, func(sum decimal.Decimal, p *domain.Payment, _ int) decimal.Decimal {
			return sum.Add(p.AmountApplied)
		}, decimal.Zero)
		if !total.Equal(inst.PaidAmount) {
			return errors.Wrapf(domain.ErrLedgerMismatch, "instance %s paid %s, payments sum to %s",
				inst.ID, inst.PaidAmount, total)
		}

		others := total.Sub(payment.AmountApplied)
		room := inst.Amount.Sub(others)
		if room.IsNegative() {
			return instancedomain.ErrNegativeBalance
		}
		applied := decimal.Min(req.Amount, room)
		clamped := req.Amount.GreaterThan(room)
		if clamped && cfg.OverpaymentPolicy == config.OverpaymentReject {
			return domain.ErrOverpayment
		}

		wasPaid := inst.IsPaid()
		now := s.clock.Now().UTC()
		if err := inst.Settle(others.Add(applied), now); err != nil {
			return err
		}

		payment.AmountTendered = req.Amount
		payment.AmountApplied = applied
		payment.PaymentDate = instancedomain.Date(req.PaymentDate)
		payment.BalanceAfter = inst.Balance
		payment.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, payment); err != nil {
			return errors.Wrap(db.Classify(err), "update payment")
		}
		if err := s.instances.UpdateSettlement(ctx, tx, inst); err != nil {
			return errors.Wrap(db.Classify(err), "update instance settlement")
		}

		var (
			schedule   *scheduledomain.Schedule
			successors []instancedomain.Instance
		)
		if !wasPaid {
			schedule, successors, err = s.generateSuccessor(ctx, tx, *inst)
			if err != nil {
				return err
			}
		}

		out = committed{
			result: domain.PaymentResult{
				Payment:    *payment,
				Instance:   *inst,
				Successors: successors,
			},
			schedule: schedule,
			outcome:  outcomeEdited,
		}
		return nil
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.log.Info("payment edited",
		zap.String("payment_id", out.result.Payment.ID.String()),
		zap.String("receipt", out.result.Payment.DocumentID),
		zap.String("balance", out.result.Instance.Balance.String()),
		zap.String("payment_status", string(out.result.Instance.PaymentStatus)),
	)
	s.publish(ctx, auditdomain.ActionPaymentEdited, out)
	return out.result, nil
}

func (s *Service) ListPayments(ctx context.Context, instanceID string) ([]domain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(instanceID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidInstanceID
	}
	inst, err := s.instances.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, instancedomain.ErrInstanceNotFound
	}

	items, err := s.repo.ListByInstance(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return lo.FromSlicePtr(items), nil
}

// lockPayable locks an instance that may take money and checks its balance invariant.
func (s *Service) lockPayable(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*instancedomain.Instance, error) {
	inst, err := s.instances.LockByID(ctx, tx, id)
	if err != nil {
		return nil, errors.Wrap(err, "lock instance")
	}
	if inst == nil {
		return nil, instancedomain.ErrInstanceNotFound
	}
	if !inst.Active {
		return nil, domain.ErrInstanceInactive
	}
	if err := inst.CheckInvariant(); err != nil {
		return nil, errors.Wrapf(err, "instance %s", inst.DocumentID)
	}
	return inst, nil
}

// generateSuccessor creates the next period when inst was just settled and is
// the latest active bill of its schedule. Settling an older bill creates nothing.
func (s *Service) generateSuccessor(ctx context.Context, tx *gorm.DB, inst instancedomain.Instance) (*scheduledomain.Schedule, []instancedomain.Instance, error) {
	if !inst.IsPaid() || inst.ScheduleID == nil {
		return nil, nil, nil
	}

	latest, err := s.instances.LatestActiveDueDate(ctx, tx, *inst.ScheduleID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "latest due date")
	}
	if latest == nil || !latest.Equal(instancedomain.Date(inst.DueDate)) {
		return nil, nil, nil
	}

	schedule, err := s.schedules.FindByID(ctx, tx, *inst.ScheduleID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load schedule")
	}
	if schedule == nil {
		return nil, nil, errors.Wrapf(scheduledomain.ErrScheduleNotFound, "instance %s", inst.DocumentID)
	}

	successors, err := s.generator.GenerateDue(ctx, tx, *schedule, inst.DueDate)
	if err != nil {
		return nil, nil, err
	}
	return schedule, successors, nil
}

func (s *Service) publish(ctx context.Context, action string, out committed) {
	res := out.result
	s.metrics.RecordPaymentApplied(ctx, out.outcome)

	var account *pdf.Account
	if out.schedule != nil {
		account = pdf.AccountFromSchedule(*out.schedule)
	}
	invoice := pdf.InvoiceFor(res.Instance, res.Instance.CreatedAt, account)
	if _, err := s.renderer.RenderReceipt(ctx, pdf.ReceiptData{
		ReceiptID:      res.Payment.DocumentID,
		Invoice:        invoice,
		PaymentDate:    res.Payment.PaymentDate,
		AmountTendered: res.Payment.AmountTendered,
		AmountApplied:  res.Payment.AmountApplied,
		BalanceAfter:   res.Payment.BalanceAfter,
	}); err != nil {
		s.log.Warn("receipt render failed", zap.String("document_id", res.Payment.DocumentID), zap.Error(err))
	}

	_ = s.auditSvc.Record(ctx, action, auditdomain.TargetPayment, res.Payment.DocumentID, map[string]any{
		"payment_id":           res.Payment.ID.String(),
		"instance_id":          res.Instance.ID.String(),
		"instance_document_id": res.Instance.DocumentID,
		"amount_tendered":      res.Payment.AmountTendered.String(),
		"amount_applied":       res.Payment.AmountApplied.String(),
		"balance_after":        res.Payment.BalanceAfter.String(),
		"payment_status":       string(res.Instance.PaymentStatus),
		"outcome":              out.outcome,
	})

	if len(res.Successors) > 0 && out.schedule != nil {
		for range res.Successors {
			s.metrics.RecordSuccessorGenerated(ctx)
		}
		s.generator.Publish(ctx, catchupdomain.SourceSuccessor, *out.schedule, res.Successors)
	}
}

func (s *Service) retryPolicy(ctx context.Context, operation string) db.RetryPolicy {
	policy := db.DefaultRetryPolicy(s.engine.Get().MaxTxAttempts)
	policy.OnRetry = func(err error, wait time.Duration) {
		s.metrics.RecordTxRetry(ctx, operation)
		s.log.Warn("retrying conflicting transaction", zap.String("operation", operation), zap.Error(err))
	}
	return policy
}

func validate(req domain.PaymentRequest) error {
	if !req.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !instancedomain.IsMoney(req.Amount) {
		return domain.ErrAmountScale
	}
	if req.PaymentDate.IsZero() {
		return domain.ErrInvalidPaymentDate
	}
	return nil
}
