package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/backoffice/internal/schedule/domain"
	"gorm.io/gorm"
)

const scheduleColumns = `id, document_id, customer_ref, product_ref, unit_price, quantity, cadence, anchor_date,
	status, category, account_owner, bank_account, superseded_by, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Schedule) error {
	if s == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.DocumentID,
		s.CustomerRef,
		s.ProductRef,
		s.UnitPrice,
		s.Quantity,
		s.Cadence,
		s.AnchorDate,
		s.Status,
		s.Category,
		s.AccountOwner,
		s.BankAccount,
		s.SupersededBy,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Schedule, error) {
	return r.findOne(ctx, db, `SELECT `+scheduleColumns+` FROM billing_schedules WHERE id = ?`, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Schedule, error) {
	return r.findOne(ctx, db, `SELECT `+scheduleColumns+` FROM billing_schedules WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Schedule, error) {
	var s domain.Schedule
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) MarkSuperseded(ctx context.Context, db *gorm.DB, id, successorID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_schedules
		 SET status = ?, superseded_by = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusSuperseded, successorID, now, id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Schedule, error) {
	var items []*domain.Schedule
	stmt := db.WithContext(ctx).Model(&domain.Schedule{})

	if customer := strings.TrimSpace(filter.CustomerRef); customer != "" {
		stmt = stmt.Where("customer_ref = ?", customer)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id < ?", filter.AfterID)
	}

	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActiveIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM billing_schedules WHERE status = ? ORDER BY id`,
		domain.StatusActive,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(raw, func(id int64, _ int) snowflake.ID { return snowflake.ID(id) }), nil
}
