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
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/providers/pdf"
	sequencedomain "github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
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
	Repo      domain.Repository
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
	repo      domain.Repository
	allocator sequencedomain.Allocator
	auditSvc  auditdomain.Service
	renderer  pdf.Renderer
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("instance.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		engine:    p.Engine,
		repo:      p.Repo,
		allocator: p.Allocator,
		auditSvc:  p.AuditSvc,
		renderer:  p.Renderer,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateOneOffInstance(ctx context.Context, req domain.CreateOneOffRequest) (domain.Instance, error) {
	if err := validateOneOff(req); err != nil {
		return domain.Instance{}, err
	}

	cfg := s.engine.Get()
	policy := db.DefaultRetryPolicy(cfg.MaxTxAttempts)
	policy.OnRetry = func(err error, _ time.Duration) {
		s.metrics.RecordTxRetry(ctx, "create_one_off_instance")
	}

	var created domain.Instance
	err := db.RetryTx(ctx, s.db, policy, func(tx *gorm.DB) error {
		inst, err := s.newInstance(req)
		if err != nil {
			return err
		}
		docID, err := s.allocator.Issue(ctx, tx, "", sequencedomain.KindInstance, &inst.ID)
		if err != nil {
			return err
		}
		inst.DocumentID = docID.String()

		if err := s.repo.Insert(ctx, tx, &inst); err != nil {
			return errors.Wrap(db.Classify(err), "insert instance")
		}
		created = inst
		return nil
	})
	if err != nil {
		return domain.Instance{}, err
	}

	s.metrics.RecordInstancesGenerated(ctx, "one_off", 1)
	s.log.Info("one-off instance created",
		zap.String("instance_id", created.ID.String()),
		zap.String("document_id", created.DocumentID),
		zap.String("customer_ref", created.CustomerRef),
	)
	s.publish(ctx, created)
	return created, nil
}

func (s *Service) newInstance(req domain.CreateOneOffRequest) (domain.Instance, error) {
	now := s.clock.Now().UTC()
	amount := req.UnitPrice.Mul(decimal.NewFromInt(req.Quantity))

	inst := domain.Instance{
		ID:            s.genID.Generate(),
		CustomerRef:   strings.TrimSpace(req.CustomerRef),
		ProductRef:    strings.TrimSpace(req.ProductRef),
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		DueDate:       domain.Date(req.DueDate),
		Amount:        amount,
		PaidAmount:    decimal.Zero,
		Balance:       amount,
		PaymentStatus: domain.PaymentStatusNotPaid,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		inst.Note = &note
	}
	if err := inst.CheckInvariant(); err != nil {
		return domain.Instance{}, err
	}
	return inst, nil
}

func validateOneOff(req domain.CreateOneOffRequest) error {
	switch {
	case strings.TrimSpace(req.CustomerRef) == "":
		return domain.ErrInvalidCustomer
	case strings.TrimSpace(req.ProductRef) == "":
		return domain.ErrInvalidProduct
	case req.Quantity <= 0:
		return domain.ErrInvalidQuantity
	case !req.UnitPrice.IsPositive():
		return domain.ErrInvalidUnitPrice
	case !domain.IsMoney(req.UnitPrice):
		return domain.ErrUnitPriceScale
	case req.DueDate.IsZero():
		return domain.ErrInvalidDueDate
	}
	return nil
}

// publish renders and audits a committed instance. Failures are logged only.
func (s *Service) publish(ctx context.Context, inst domain.Instance) {
	if _, err := s.renderer.RenderInvoice(ctx, pdf.InvoiceFor(inst, s.clock.Now(), nil)); err != nil {
		s.log.Warn("invoice render failed", zap.String("document_id", inst.DocumentID), zap.Error(err))
	}
	_ = s.auditSvc.Record(ctx, auditdomain.ActionInstanceCreated, auditdomain.TargetInstance, inst.DocumentID, map[string]any{
		"instance_id":  inst.ID.String(),
		"customer_ref": inst.CustomerRef,
		"amount":       inst.Amount.String(),
		"due_date":     inst.DueDate.Format("2006-01-02"),
		"source":       "one_off",
	})
}

func (s *Service) Get(ctx context.Context, id string) (domain.Instance, error) {
	instanceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || instanceID == 0 {
		return domain.Instance{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, instanceID)
	if err != nil {
		return domain.Instance{}, err
	}
	if item == nil {
		return domain.Instance{}, domain.ErrInstanceNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInstanceRequest) (domain.ListInstanceResponse, error) {
	filter := domain.ListFilter{
		CustomerRef: req.CustomerRef,
		ActiveOnly:  req.ActiveOnly,
		Limit:       pagination.Limit(req.PageSize),
	}

	switch req.PaymentStatus {
	case "", domain.PaymentStatusNotPaid, domain.PaymentStatusPaid, domain.PaymentStatusRefund:
		filter.PaymentStatus = req.PaymentStatus
	default:
		return domain.ListInstanceResponse{}, domain.ErrInvalidStatus
	}

	if raw := strings.TrimSpace(req.ScheduleID); raw != "" {
		scheduleID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListInstanceResponse{}, domain.ErrInvalidID
		}
		filter.ScheduleID = &scheduleID
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListInstanceResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterID, err = snowflake.ParseString(cursor.ID)
		if err != nil || filter.AfterID == 0 {
			return domain.ListInstanceResponse{}, domain.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListInstanceResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(item *domain.Instance) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	return domain.ListInstanceResponse{
		PageInfo:  pageInfo,
		Instances: lo.FromSlicePtr(items),
	}, nil
}

func (s *Service) ListUnpaidByCustomer(ctx context.Context, customerRef string) ([]domain.Instance, error) {
	if strings.TrimSpace(customerRef) == "" {
		return nil, domain.ErrInvalidCustomer
	}
	items, err := s.repo.ListUnpaidByCustomer(ctx, s.db, customerRef)
	if err != nil {
		return nil, err
	}
	return lo.FromSlicePtr(items), nil
}
