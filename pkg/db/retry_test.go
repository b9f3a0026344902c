package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/dbtest"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fastPolicy(attempts int) db.RetryPolicy {
	p := db.DefaultRetryPolicy(attempts)
	p.InitialInterval = time.Millisecond
	p.MaxInterval = 2 * time.Millisecond
	return p
}

func TestRetryTxReplaysConflicts(t *testing.T) {
	conn := dbtest.Open(t)

	calls := 0
	retries := 0
	policy := fastPolicy(3)
	policy.OnRetry = func(error, time.Duration) { retries++ }

	err := db.RetryTx(context.Background(), conn, policy, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return gorm.ErrDuplicatedKey
		}
		return tx.Exec(`INSERT INTO sequence_counters (prefix, year, month, last_ordinal) VALUES ('TKB', 2025, 1, 1)`).Error
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetryTxGivesUpAfterMaxAttempts(t *testing.T) {
	conn := dbtest.Open(t)

	calls := 0
	err := db.RetryTx(context.Background(), conn, fastPolicy(2), func(tx *gorm.DB) error {
		calls++
		return gorm.ErrDuplicatedKey
	})
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.Equal(t, 2, calls)
}

func TestRetryTxDoesNotRetryOtherErrors(t *testing.T) {
	conn := dbtest.Open(t)

	calls := 0
	boom := errs.Validation("boom")
	err := db.RetryTx(context.Background(), conn, fastPolicy(5), func(tx *gorm.DB) error {
		calls++
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
}

func TestRetryTxRollsBackFailedAttempt(t *testing.T) {
	conn := dbtest.Open(t)

	err := db.RetryTx(context.Background(), conn, fastPolicy(1), func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO sequence_counters (prefix, year, month, last_ordinal) VALUES ('TKB', 2025, 2, 9)`).Error; err != nil {
			return err
		}
		return errs.Validation("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Raw(`SELECT COUNT(*) FROM sequence_counters`).Scan(&count).Error)
	assert.Zero(t, count)
}
