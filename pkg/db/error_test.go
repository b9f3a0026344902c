package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: billing_instances.schedule_id, billing_instances.due_date")))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.False(t, IsDuplicateKeyErr(errors.New("syntax error")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestIsSerializationErr(t *testing.T) {
	assert.True(t, IsSerializationErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationErr(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsSerializationErr(errors.New("database is locked")))
	assert.False(t, IsSerializationErr(&pgconn.PgError{Code: "23505"}))
}

func TestIsCheckViolation(t *testing.T) {
	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: "23514"}))
	assert.True(t, IsCheckViolation(errors.New("CHECK constraint failed: unit_price > 0")))
	assert.True(t, IsCheckViolation(errors.New("Error 3819: Check constraint 'chk_price' is violated.")))
	assert.False(t, IsCheckViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsCheckViolation(nil))
}

func TestClassify(t *testing.T) {
	assert.True(t, errs.IsConflict(Classify(gorm.ErrDuplicatedKey)))
	assert.True(t, errs.IsConflict(Classify(&pgconn.PgError{Code: "40001"})))

	plain := errors.New("connection refused")
	assert.Same(t, plain, Classify(plain))
	assert.Nil(t, Classify(nil))

	validation := errs.Validation("amount_must_be_positive")
	assert.False(t, errs.IsConflict(Classify(validation)))

	checked := Classify(&pgconn.PgError{Code: "23514"})
	assert.True(t, errs.IsValidation(checked))
	assert.False(t, errs.IsConflict(checked))
}
