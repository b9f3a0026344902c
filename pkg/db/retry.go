package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

// RetryPolicy bounds how often a conflicting transaction is replayed.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry observes every conflict that is about to be retried.
	OnRetry func(err error, wait time.Duration)
}

func DefaultRetryPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// RetryTx runs fn inside a fresh transaction and replays it while it fails with a conflict.
// Non-retryable errors return immediately. Once attempts run out the last conflict is returned.
func RetryTx(ctx context.Context, conn *gorm.DB, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		expo.MaxInterval = policy.MaxInterval
	}
	expo.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)

	op := func() error {
		err := Classify(conn.WithContext(ctx).Transaction(fn))
		if err == nil {
			return nil
		}
		if errs.Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	var notify backoff.Notify
	if policy.OnRetry != nil {
		notify = policy.OnRetry
	}
	return backoff.RetryNotify(op, b, notify)
}
