package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/instance/domain"
	"gorm.io/gorm"
)

const instanceColumns = `id, schedule_id, document_id, customer_ref, product_ref, quantity, unit_price,
	due_date, amount, paid_amount, balance, payment_status, active, note, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inst *domain.Instance) error {
	if inst == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.ScheduleID,
		inst.DocumentID,
		inst.CustomerRef,
		inst.ProductRef,
		inst.Quantity,
		inst.UnitPrice,
		inst.DueDate,
		inst.Amount,
		inst.PaidAmount,
		inst.Balance,
		inst.PaymentStatus,
		inst.Active,
		inst.Note,
		inst.CreatedAt,
		inst.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Instance, error) {
	return r.findOne(ctx, db, `SELECT `+instanceColumns+` FROM billing_instances WHERE id = ?`, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Instance, error) {
	return r.findOne(ctx, db, `SELECT `+instanceColumns+` FROM billing_instances WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Instance, error) {
	var inst domain.Instance
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&inst).Error; err != nil {
		return nil, err
	}
	if inst.ID == 0 {
		return nil, nil
	}
	return &inst, nil
}

func (r *repo) ExistsForDueDate(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID, dueDate time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM billing_instances WHERE schedule_id = ? AND due_date = ?`,
		scheduleID, domain.Date(dueDate),
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type dueDateRow struct {
	DueDate time.Time
}

func (r *repo) LatestActiveDueDate(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID) (*time.Time, error) {
	var rows []dueDateRow
	err := db.WithContext(ctx).Raw(
		`SELECT due_date FROM billing_instances
		 WHERE schedule_id = ? AND active = ?
		 ORDER BY due_date DESC
		 LIMIT 1`,
		scheduleID, true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	latest := domain.Date(rows[0].DueDate)
	return &latest, nil
}

func (r *repo) UpdateSettlement(ctx context.Context, db *gorm.DB, inst *domain.Instance) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_instances
		 SET paid_amount = ?, balance = ?, payment_status = ?, updated_at = ?
		 WHERE id = ?`,
		inst.PaidAmount,
		inst.Balance,
		inst.PaymentStatus,
		inst.UpdatedAt,
		inst.ID,
	).Error
}

func (r *repo) RetireUnpaid(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID, note string, now time.Time) ([]*domain.Instance, error) {
	var unpaid []*domain.Instance
	err := db.WithContext(ctx).Raw(
		`SELECT `+instanceColumns+` FROM billing_instances
		 WHERE schedule_id = ? AND active = ? AND payment_status <> ?
		 ORDER BY due_date ASC
		 FOR UPDATE`,
		scheduleID, true, domain.PaymentStatusPaid,
	).Scan(&unpaid).Error
	if err != nil {
		return nil, err
	}
	if len(unpaid) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(unpaid))
	for _, inst := range unpaid {
		ids = append(ids, inst.ID)
	}
	if err := db.WithContext(ctx).Exec(
		`UPDATE billing_instances SET active = ?, note = ?, updated_at = ? WHERE id IN ?`,
		false, note, now, ids,
	).Error; err != nil {
		return nil, err
	}

	for _, inst := range unpaid {
		inst.Active = false
		inst.Note = &note
		inst.UpdatedAt = now
	}
	return unpaid, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Instance, error) {
	var items []*domain.Instance
	stmt := db.WithContext(ctx).Model(&domain.Instance{})

	if customer := strings.TrimSpace(filter.CustomerRef); customer != "" {
		stmt = stmt.Where("customer_ref = ?", customer)
	}
	if filter.ScheduleID != nil {
		stmt = stmt.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("active = ?", true)
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

func (r *repo) ListUnpaidByCustomer(ctx context.Context, db *gorm.DB, customerRef string) ([]*domain.Instance, error) {
	var items []*domain.Instance
	err := db.WithContext(ctx).Raw(
		`SELECT `+instanceColumns+` FROM billing_instances
		 WHERE customer_ref = ? AND active = ? AND payment_status = ?
		 ORDER BY due_date DESC, id DESC`,
		strings.TrimSpace(customerRef), true, domain.PaymentStatusNotPaid,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
