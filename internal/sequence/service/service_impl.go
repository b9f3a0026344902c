package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Engine  *config.EngineConfigHolder
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	engine  *config.EngineConfigHolder
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("sequence.service"),
		clock:   p.Clock,
		engine:  p.Engine,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Provide exposes the service behind the Allocator interface for fx.
func Provide(p Params) domain.Allocator {
	return New(p)
}

func (s *Service) Issue(ctx context.Context, tx *gorm.DB, prefix string, kind domain.Kind, ownerID *snowflake.ID) (domain.DocumentID, error) {
	if tx == nil {
		return domain.DocumentID{}, domain.ErrTransactionRequired
	}
	if !validKind(kind) {
		return domain.DocumentID{}, domain.ErrInvalidKind
	}

	cfg := s.engine.Get()
	prefix, err := s.resolvePrefix(prefix, cfg)
	if err != nil {
		return domain.DocumentID{}, err
	}

	now := s.clock.Now()
	period := domain.PeriodAt(prefix, now.In(cfg.Location()))

	for attempt := 1; attempt <= cfg.MaxAllocationAttempts; attempt++ {
		ordinal, err := s.repo.Increment(ctx, tx, period, now)
		if err != nil {
			return domain.DocumentID{}, errors.Wrap(db.Classify(err), "advance sequence counter")
		}

		id := period.Document(ordinal)
		registered, err := s.repo.Register(ctx, tx, domain.IssuedDocument{
			DocumentID: id.String(),
			Prefix:     id.Prefix,
			Year:       id.Year,
			Month:      id.Month,
			Ordinal:    id.Ordinal,
			Kind:       kind,
			OwnerID:    ownerID,
			CreatedAt:  now,
		})
		if err != nil {
			return domain.DocumentID{}, errors.Wrap(db.Classify(err), "register document id")
		}
		if registered {
			s.metrics.RecordDocumentIssued(ctx, string(kind))
			return id, nil
		}

		s.metrics.RecordAllocationConflict(ctx)
		s.log.Warn("document id already registered, advancing counter",
			zap.String("document_id", id.String()),
			zap.Int("attempt", attempt),
		)
	}

	return domain.DocumentID{}, errors.Wrapf(domain.ErrAllocationExhausted,
		"prefix %s period %02d/%d after %d attempts", period.Prefix, period.Month, period.Year, cfg.MaxAllocationAttempts)
}

func (s *Service) NextDocumentID(ctx context.Context, prefix string) (domain.DocumentID, error) {
	cfg := s.engine.Get()
	var id domain.DocumentID
	err := db.RetryTx(ctx, s.db, db.DefaultRetryPolicy(cfg.MaxTxAttempts), func(tx *gorm.DB) error {
		var err error
		id, err = s.Issue(ctx, tx, prefix, domain.KindReserved, nil)
		return err
	})
	if err != nil {
		return domain.DocumentID{}, err
	}
	s.log.Info("document id reserved", zap.String("document_id", id.String()))
	return id, nil
}

func (s *Service) Peek(ctx context.Context, prefix string) (domain.DocumentID, error) {
	cfg := s.engine.Get()
	prefix, err := s.resolvePrefix(prefix, cfg)
	if err != nil {
		return domain.DocumentID{}, err
	}

	period := domain.PeriodAt(prefix, s.clock.Now().In(cfg.Location()))
	last, err := s.repo.Current(ctx, s.db, period)
	if err != nil {
		return domain.DocumentID{}, errors.Wrap(err, "read sequence counter")
	}
	return period.Document(last + 1), nil
}

func (s *Service) Lookup(ctx context.Context, documentID string) (domain.IssuedDocument, error) {
	if _, err := domain.Parse(documentID); err != nil {
		return domain.IssuedDocument{}, err
	}
	doc, err := s.repo.FindIssued(ctx, s.db, strings.TrimSpace(documentID))
	if err != nil {
		return domain.IssuedDocument{}, err
	}
	if doc == nil {
		return domain.IssuedDocument{}, domain.ErrDocumentNotFound
	}
	return *doc, nil
}

func (s *Service) resolvePrefix(prefix string, cfg config.EngineConfig) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = cfg.DocumentPrefix
	}
	if !config.ValidPrefix(prefix) {
		return "", domain.ErrInvalidPrefix
	}
	return prefix, nil
}

func validKind(kind domain.Kind) bool {
	switch kind {
	case domain.KindSchedule, domain.KindInstance, domain.KindReceipt, domain.KindReserved:
		return true
	default:
		return false
	}
}
