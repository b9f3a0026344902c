package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/backoffice/internal/sequence/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, p domain.Period, now time.Time) (int64, error) {
	var next int64
	switch db.Dialector.Name() {
	case "mysql":
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO sequence_counters (prefix, year, month, last_ordinal, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON DUPLICATE KEY UPDATE last_ordinal = last_ordinal + 1, updated_at = VALUES(updated_at)`,
			p.Prefix, p.Year, p.Month, now,
		).Error; err != nil {
			return 0, err
		}
		return r.Current(ctx, db, p)
	default:
		err := db.WithContext(ctx).Raw(
			`INSERT INTO sequence_counters (prefix, year, month, last_ordinal, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (prefix, year, month)
			 DO UPDATE SET last_ordinal = sequence_counters.last_ordinal + 1, updated_at = excluded.updated_at
			 RETURNING last_ordinal`,
			p.Prefix, p.Year, p.Month, now,
		).Scan(&next).Error
		if err != nil {
			return 0, err
		}
	}
	if next < 1 {
		return 0, errors.New("sequence counter returned no value")
	}
	return next, nil
}

func (r *repo) Current(ctx context.Context, db *gorm.DB, p domain.Period) (int64, error) {
	var last int64
	err := db.WithContext(ctx).Raw(
		`SELECT last_ordinal FROM sequence_counters WHERE prefix = ? AND year = ? AND month = ?`,
		p.Prefix, p.Year, p.Month,
	).Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last, nil
}

func (r *repo) Register(ctx context.Context, db *gorm.DB, doc domain.IssuedDocument) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&doc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindIssued(ctx context.Context, db *gorm.DB, documentID string) (*domain.IssuedDocument, error) {
	var doc domain.IssuedDocument
	err := db.WithContext(ctx).Raw(
		`SELECT document_id, prefix, year, month, ordinal, kind, owner_id, created_at
		 FROM issued_documents WHERE document_id = ?`,
		documentID,
	).Scan(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.DocumentID == "" {
		return nil, nil
	}
	return &doc, nil
}
