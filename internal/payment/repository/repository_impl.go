package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, instance_id, document_id, amount_tendered, amount_applied, payment_date,
	balance_after, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	if p == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.InstanceID,
		p.DocumentID,
		p.AmountTendered,
		p.AmountApplied,
		p.PaymentDate,
		p.BalanceAfter,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ? FOR UPDATE`, id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListByInstance(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) ([]*domain.Payment, error) {
	var items []*domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE instance_id = ? ORDER BY id ASC`, instanceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET amount_tendered = ?, amount_applied = ?, payment_date = ?, balance_after = ?, updated_at = ?
		 WHERE id = ?`,
		p.AmountTendered,
		p.AmountApplied,
		p.PaymentDate,
		p.BalanceAfter,
		p.UpdatedAt,
		p.ID,
	).Error
}
