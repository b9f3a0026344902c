package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	catchupdomain "github.com/smallbiznis/backoffice/internal/catchup/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/schedule/domain"
	sequencedomain "github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Engine      *config.EngineConfigHolder
	Repo        domain.Repository
	Instances   instancedomain.Repository
	InstanceSvc instancedomain.Service
	Allocator   sequencedomain.Allocator
	Generator   catchupdomain.Generator
	AuditSvc    auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	engine      *config.EngineConfigHolder
	repo        domain.Repository
	instances   instancedomain.Repository
	instanceSvc instancedomain.Service
	allocator   sequencedomain.Allocator
	generator   catchupdomain.Generator
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("schedule.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		engine:      p.Engine,
		repo:        p.Repo,
		instances:   p.Instances,
		instanceSvc: p.InstanceSvc,
		allocator:   p.Allocator,
		generator:   p.Generator,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) CreateSchedule(ctx context.Context, req domain.CreateScheduleRequest) (domain.CreateScheduleResult, error) {
	cadence, err := validate(req)
	if err != nil {
		return domain.CreateScheduleResult{}, err
	}

	if !cadence.Recurring() {
		inst, err := s.instanceSvc.CreateOneOffInstance(ctx, instancedomain.CreateOneOffRequest{
			CustomerRef: req.CustomerRef,
			ProductRef:  req.ProductRef,
			UnitPrice:   req.UnitPrice,
			Quantity:    req.Quantity,
			DueDate:     req.AnchorDate,
		})
		if err != nil {
			return domain.CreateScheduleResult{}, err
		}
		return domain.CreateScheduleResult{Instances: []instancedomain.Instance{inst}}, nil
	}

	var (
		schedule  domain.Schedule
		instances []instancedomain.Instance
	)
	err = db.RetryTx(ctx, s.db, s.retryPolicy(ctx, "create_schedule"), func(tx *gorm.DB) error {
		var err error
		schedule, err = s.insertSchedule(ctx, tx, req, cadence)
		if err != nil {
			return err
		}
		instances, err = s.generator.GenerateDue(ctx, tx, schedule, s.today())
		return err
	})
	if err != nil {
		return domain.CreateScheduleResult{}, err
	}

	s.log.Info("schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("document_id", schedule.DocumentID),
		zap.String("cadence", string(schedule.Cadence)),
		zap.Int("instances", len(instances)),
	)
	s.audit(ctx, auditdomain.ActionScheduleCreated, schedule, nil)
	s.generator.Publish(ctx, catchupdomain.SourceScheduleCreated, schedule, instances)

	return domain.CreateScheduleResult{Schedule: &schedule, Instances: instances}, nil
}

func (s *Service) SupersedeSchedule(ctx context.Context, scheduleID string, req domain.SupersedeRequest) (domain.SupersedeResult, error) {
	id, err := parseID(scheduleID)
	if err != nil {
		return domain.SupersedeResult{}, err
	}

	var result domain.SupersedeResult
	err = db.RetryTx(ctx, s.db, s.retryPolicy(ctx, "supersede_schedule"), func(tx *gorm.DB) error {
		previous, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return errors.Wrap(err, "lock schedule")
		}
		if previous == nil {
			return domain.ErrScheduleNotFound
		}
		if !previous.IsActive() {
			return domain.ErrScheduleSuperseded
		}

		next := inherit(req, *previous)
		cadence, err := validate(next)
		if err != nil {
			return err
		}
		if !cadence.Recurring() {
			return domain.ErrOccasionalSuccessor
		}

		now := s.clock.Now().UTC()
		retired, err := s.instances.RetireUnpaid(ctx, tx, previous.ID, instancedomain.NoteSuperseded, now)
		if err != nil {
			return errors.Wrap(err, "retire unpaid instances")
		}

		successor, err := s.insertSchedule(ctx, tx, next, cadence)
		if err != nil {
			return err
		}
		if err := s.repo.MarkSuperseded(ctx, tx, previous.ID, successor.ID, now); err != nil {
			return errors.Wrap(err, "mark schedule superseded")
		}
		previous.Status = domain.StatusSuperseded
		previous.SupersededBy = lo.ToPtr(successor.ID)
		previous.UpdatedAt = now

		instances, err := s.generator.GenerateDue(ctx, tx, successor, s.today())
		if err != nil {
			return err
		}

		result = domain.SupersedeResult{
			Previous:  *previous,
			Schedule:  successor,
			Retired:   lo.FromSlicePtr(retired),
			Instances: instances,
		}
		return nil
	})
	if err != nil {
		return domain.SupersedeResult{}, err
	}

	s.log.Info("schedule superseded",
		zap.String("previous_id", result.Previous.ID.String()),
		zap.String("schedule_id", result.Schedule.ID.String()),
		zap.Int("retired", len(result.Retired)),
		zap.Int("instances", len(result.Instances)),
	)
	s.audit(ctx, auditdomain.ActionScheduleSuperseded, result.Previous, map[string]any{
		"superseded_by":             result.Schedule.ID.String(),
		"superseded_by_document_id": result.Schedule.DocumentID,
		"retired_instances": lo.Map(result.Retired, func(inst instancedomain.Instance, _ int) string {
			return inst.DocumentID
		}),
	})
	s.audit(ctx, auditdomain.ActionScheduleCreated, result.Schedule, map[string]any{
		"supersedes": result.Previous.ID.String(),
	})
	s.generator.Publish(ctx, catchupdomain.SourceSupersession, result.Schedule, result.Instances)

	return result, nil
}

func (s *Service) insertSchedule(ctx context.Context, tx *gorm.DB, req domain.CreateScheduleRequest, cadence domain.Cadence) (domain.Schedule, error) {
	now := s.clock.Now().UTC()
	schedule := domain.Schedule{
		ID:           s.genID.Generate(),
		CustomerRef:  strings.TrimSpace(req.CustomerRef),
		ProductRef:   strings.TrimSpace(req.ProductRef),
		UnitPrice:    req.UnitPrice,
		Quantity:     req.Quantity,
		Cadence:      cadence,
		AnchorDate:   instancedomain.Date(req.AnchorDate),
		Status:       domain.StatusActive,
		Category:     optional(req.Category),
		AccountOwner: optional(req.AccountOwner),
		BankAccount:  optional(req.BankAccount),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	docID, err := s.allocator.Issue(ctx, tx, "", sequencedomain.KindSchedule, &schedule.ID)
	if err != nil {
		return domain.Schedule{}, err
	}
	schedule.DocumentID = docID.String()

	if err := s.repo.Insert(ctx, tx, &schedule); err != nil {
		return domain.Schedule{}, errors.Wrap(db.Classify(err), "insert schedule")
	}
	return schedule, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Schedule, error) {
	scheduleID, err := parseID(id)
	if err != nil {
		return domain.Schedule{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, scheduleID)
	if err != nil {
		return domain.Schedule{}, err
	}
	if item == nil {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListScheduleRequest) (domain.ListScheduleResponse, error) {
	filter := domain.ListFilter{
		CustomerRef: req.CustomerRef,
		Limit:       pagination.Limit(req.PageSize),
	}
	switch req.Status {
	case "", domain.StatusActive, domain.StatusSuperseded:
		filter.Status = req.Status
	default:
		return domain.ListScheduleResponse{}, domain.ErrInvalidStatus
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListScheduleResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterID, err = snowflake.ParseString(cursor.ID)
		if err != nil || filter.AfterID == 0 {
			return domain.ListScheduleResponse{}, domain.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListScheduleResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(item *domain.Schedule) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	return domain.ListScheduleResponse{
		PageInfo:  pageInfo,
		Schedules: lo.FromSlicePtr(items),
	}, nil
}

func (s *Service) audit(ctx context.Context, action string, schedule domain.Schedule, extra map[string]any) {
	metadata := map[string]any{
		"schedule_id":  schedule.ID.String(),
		"customer_ref": schedule.CustomerRef,
		"product_ref":  schedule.ProductRef,
		"cadence":      string(schedule.Cadence),
		"anchor_date":  schedule.AnchorDate.Format(time.DateOnly),
		"amount":       schedule.Amount().String(),
	}
	if schedule.BankAccount != nil {
		metadata["bank_account"] = *schedule.BankAccount
	}
	for key, value := range extra {
		metadata[key] = value
	}
	_ = s.auditSvc.Record(ctx, action, auditdomain.TargetSchedule, schedule.DocumentID, metadata)
}

// today is the current calendar date in the engine timezone.
func (s *Service) today() time.Time {
	return s.clock.Now().In(s.engine.Get().Location())
}

func (s *Service) retryPolicy(ctx context.Context, operation string) db.RetryPolicy {
	policy := db.DefaultRetryPolicy(s.engine.Get().MaxTxAttempts)
	policy.OnRetry = func(err error, wait time.Duration) {
		s.metrics.RecordTxRetry(ctx, operation)
		s.log.Warn("retrying conflicting transaction", zap.String("operation", operation), zap.Error(err))
	}
	return policy
}

func validate(req domain.CreateScheduleRequest) (domain.Cadence, error) {
	switch {
	case strings.TrimSpace(req.CustomerRef) == "":
		return "", domain.ErrInvalidCustomer
	case strings.TrimSpace(req.ProductRef) == "":
		return "", domain.ErrInvalidProduct
	case req.Quantity <= 0:
		return "", domain.ErrInvalidQuantity
	case !req.UnitPrice.IsPositive():
		return "", domain.ErrInvalidUnitPrice
	case !instancedomain.IsMoney(req.UnitPrice):
		return "", domain.ErrUnitPriceScale
	case req.AnchorDate.IsZero():
		return "", domain.ErrInvalidAnchorDate
	}
	return domain.ParseCadence(req.Cadence)
}

// inherit fills the blanks of a supersede request from the schedule it replaces.
func inherit(req domain.SupersedeRequest, previous domain.Schedule) domain.CreateScheduleRequest {
	next := req
	next.CustomerRef = lo.Ternary(strings.TrimSpace(req.CustomerRef) == "", previous.CustomerRef, req.CustomerRef)
	next.ProductRef = lo.Ternary(strings.TrimSpace(req.ProductRef) == "", previous.ProductRef, req.ProductRef)
	next.Category = lo.Ternary(strings.TrimSpace(req.Category) == "", lo.FromPtr(previous.Category), req.Category)
	next.AccountOwner = lo.Ternary(strings.TrimSpace(req.AccountOwner) == "", lo.FromPtr(previous.AccountOwner), req.AccountOwner)
	next.BankAccount = lo.Ternary(strings.TrimSpace(req.BankAccount) == "", lo.FromPtr(previous.BankAccount), req.BankAccount)
	return next
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
