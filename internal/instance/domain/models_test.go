package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstance(amount string) Instance {
	a := decimal.RequireFromString(amount)
	return Instance{Amount: a, Balance: a, PaymentStatus: PaymentStatusNotPaid}
}

func TestSettleDerivesBalanceAndStatus(t *testing.T) {
	now := time.Date(2025, time.January, 16, 0, 0, 0, 0, time.UTC)
	inst := newInstance("150")

	require.NoError(t, inst.Settle(decimal.RequireFromString("40"), now))
	assert.Equal(t, "110", inst.Balance.String())
	assert.Equal(t, PaymentStatusNotPaid, inst.PaymentStatus)
	assert.Equal(t, now, inst.UpdatedAt)

	require.NoError(t, inst.Settle(decimal.RequireFromString("150"), now))
	assert.True(t, inst.Balance.IsZero())
	assert.True(t, inst.IsPaid())
	assert.Equal(t, PaymentStatusPaid, inst.PaymentStatus)

	require.NoError(t, inst.Settle(decimal.Zero, now))
	assert.Equal(t, PaymentStatusNotPaid, inst.PaymentStatus)
}

func TestSettleRefusesOverpayment(t *testing.T) {
	inst := newInstance("150")

	err := inst.Settle(decimal.RequireFromString("150.01"), time.Now())
	assert.ErrorIs(t, err, ErrNegativeBalance)
	assert.True(t, errs.IsIntegrity(err))
	assert.Equal(t, "150", inst.Balance.String())

	assert.ErrorIs(t, inst.Settle(decimal.NewFromInt(-1), time.Now()), ErrNegativePaidAmount)
}

func TestIsMoney(t *testing.T) {
	assert.True(t, IsMoney(decimal.RequireFromString("125.50")))
	assert.True(t, IsMoney(decimal.RequireFromString("1.500")))
	assert.True(t, IsMoney(decimal.NewFromInt(7)))
	assert.False(t, IsMoney(decimal.RequireFromString("0.005")))
	assert.False(t, IsMoney(decimal.RequireFromString("99.999")))
}

func TestCheckInvariant(t *testing.T) {
	inst := newInstance("100")
	require.NoError(t, inst.CheckInvariant())

	broken := inst
	broken.PaidAmount = decimal.NewFromInt(10)
	assert.ErrorIs(t, broken.CheckInvariant(), ErrBalanceMismatch)

	wrongStatus := inst
	wrongStatus.PaymentStatus = PaymentStatusPaid
	assert.ErrorIs(t, wrongStatus.CheckInvariant(), ErrStatusMismatch)
}

func TestDate(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	assert.Equal(t,
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Date(time.Date(2025, time.March, 1, 23, 30, 0, 0, loc)),
	)
}
