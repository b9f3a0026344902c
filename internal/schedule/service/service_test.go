package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/enginetest"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	paymentdomain "github.com/smallbiznis/backoffice/internal/payment/domain"
	"github.com/smallbiznis/backoffice/internal/schedule/domain"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hosting(cadence string, anchor time.Time) domain.CreateScheduleRequest {
	return domain.CreateScheduleRequest{
		CustomerRef:  "cust-1",
		ProductRef:   "Hosting",
		UnitPrice:    decimal.RequireFromString("150"),
		Quantity:     1,
		Cadence:      cadence,
		AnchorDate:   anchor,
		Category:     "infrastructure",
		AccountOwner: "PT Toko Kita",
		BankAccount:  "1234567890",
	}
}

func TestCreateScheduleGeneratesThroughLookAhead(t *testing.T) {
	e := enginetest.New(t)

	res, err := e.Schedules.CreateSchedule(context.Background(), hosting("monthly", enginetest.Date(2025, time.January, 15)))
	require.NoError(t, err)
	require.NotNil(t, res.Schedule)

	assert.Equal(t, "TKB/01001/25", res.Schedule.DocumentID)
	assert.Equal(t, domain.StatusActive, res.Schedule.Status)
	assert.Equal(t, domain.CadenceMonthly, res.Schedule.Cadence)
	assert.Equal(t, "infrastructure", lo.FromPtr(res.Schedule.Category))

	assert.Equal(t, []string{"2025-01-15", "2025-02-15"}, enginetest.DueDates(res.Instances))
	assert.Equal(t, []string{"TKB/01002/25", "TKB/01003/25"}, lo.Map(res.Instances, func(inst instancedomain.Instance, _ int) string {
		return inst.DocumentID
	}))
	for _, inst := range res.Instances {
		assert.Equal(t, res.Schedule.ID, lo.FromPtr(inst.ScheduleID))
		assert.True(t, inst.Balance.Equal(decimal.RequireFromString("150")))
	}

	assert.Equal(t, []string{
		auditdomain.ActionScheduleCreated,
		auditdomain.ActionInstanceCreated,
		auditdomain.ActionInstanceCreated,
	}, e.Audit.Actions())

	invoices := e.Renderer.Invoices()
	require.Len(t, invoices, 2)
	assert.Equal(t, "PT Toko Kita", invoices[0].AccountOwner)
	assert.Equal(t, "1234567890", invoices[0].BankAccount)
}

func TestCreateOccasionalScheduleMakesOneOff(t *testing.T) {
	e := enginetest.New(t)

	res, err := e.Schedules.CreateSchedule(context.Background(), hosting("occasional", enginetest.Date(2025, time.March, 3)))
	require.NoError(t, err)

	assert.Nil(t, res.Schedule)
	require.Len(t, res.Instances, 1)
	assert.Nil(t, res.Instances[0].ScheduleID)
	assert.Equal(t, []string{"2025-03-03"}, enginetest.DueDates(res.Instances))

	list, err := e.Schedules.List(context.Background(), domain.ListScheduleRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Schedules)
}

func TestCreateScheduleValidates(t *testing.T) {
	e := enginetest.New(t)
	ctx := context.Background()

	req := hosting("fortnightly", enginetest.Date(2025, time.January, 15))
	_, err := e.Schedules.CreateSchedule(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCadence)
	assert.True(t, errs.IsValidation(err))

	req = hosting("monthly", time.Time{})
	_, err = e.Schedules.CreateSchedule(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAnchorDate)

	req = hosting("monthly", enginetest.Date(2025, time.January, 15))
	req.UnitPrice = decimal.Zero
	_, err = e.Schedules.CreateSchedule(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidUnitPrice)

	req.UnitPrice = decimal.RequireFromString("12.345")
	_, err = e.Schedules.CreateSchedule(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnitPriceScale)
	assert.True(t, errs.IsValidation(err))

	assert.Empty(t, e.Audit.Actions())
}

func TestSupersedeRetiresUnpaidAndKeepsPaid(t *testing.T) {
	e := enginetest.New(t)
	ctx := context.Background()

	created, err := e.Schedules.CreateSchedule(ctx, hosting("monthly", enginetest.Date(2025, time.January, 15)))
	require.NoError(t, err)
	paid := created.Instances[0]
	_, err = e.Payments.ApplyPayment(ctx, paid.ID.String(), paymentdomain.PaymentRequest{
		Amount:      paid.Amount,
		PaymentDate: enginetest.Date(2025, time.January, 15),
	})
	require.NoError(t, err)

	res, err := e.Schedules.SupersedeSchedule(ctx, created.Schedule.ID.String(), domain.SupersedeRequest{
		UnitPrice:  decimal.RequireFromString("200"),
		Quantity:   1,
		Cadence:    "monthly",
		AnchorDate: enginetest.Date(2025, time.January, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuperseded, res.Previous.Status)
	assert.Equal(t, res.Schedule.ID, lo.FromPtr(res.Previous.SupersededBy))
	assert.Equal(t, "cust-1", res.Schedule.CustomerRef)
	assert.Equal(t, "Hosting", res.Schedule.ProductRef)
	assert.Equal(t, "1234567890", lo.FromPtr(res.Schedule.BankAccount))

	require.Len(t, res.Retired, 1)
	assert.Equal(t, created.Instances[1].ID, res.Retired[0].ID)
	assert.False(t, res.Retired[0].Active)
	assert.Equal(t, instancedomain.NoteSuperseded, lo.FromPtr(res.Retired[0].Note))

	stored, err := e.Schedules.Get(ctx, created.Schedule.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuperseded, stored.Status)

	old := e.ScheduleInstances(t, created.Schedule.ID)
	require.Len(t, old, 2)
	assert.True(t, old[0].Active)
	assert.Equal(t, instancedomain.PaymentStatusPaid, old[0].PaymentStatus)
	assert.False(t, old[1].Active)

	fresh := e.ScheduleInstances(t, res.Schedule.ID)
	assert.Equal(t, []string{"2025-01-01", "2025-02-01"}, enginetest.DueDates(fresh))
	for _, inst := range fresh {
		assert.True(t, inst.Amount.Equal(decimal.RequireFromString("200")))
	}

	seen := map[string]bool{}
	for _, inst := range append(old, fresh...) {
		assert.False(t, seen[inst.DocumentID], "document %s reused", inst.DocumentID)
		seen[inst.DocumentID] = true
	}

	assert.Contains(t, e.Audit.Actions(), auditdomain.ActionScheduleSuperseded)
}

func TestSupersedeRejections(t *testing.T) {
	e := enginetest.New(t)
	ctx := context.Background()

	created, err := e.Schedules.CreateSchedule(ctx, hosting("monthly", enginetest.Date(2025, time.January, 15)))
	require.NoError(t, err)
	id := created.Schedule.ID.String()

	_, err = e.Schedules.SupersedeSchedule(ctx, id, hosting("occasional", enginetest.Date(2025, time.February, 1)))
	assert.ErrorIs(t, err, domain.ErrOccasionalSuccessor)
	// The failed attempt changed nothing.
	for _, inst := range e.ScheduleInstances(t, created.Schedule.ID) {
		assert.True(t, inst.Active)
	}

	_, err = e.Schedules.SupersedeSchedule(ctx, "123456789", hosting("monthly", enginetest.Date(2025, time.February, 1)))
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	_, err = e.Schedules.SupersedeSchedule(ctx, "x", hosting("monthly", enginetest.Date(2025, time.February, 1)))
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = e.Schedules.SupersedeSchedule(ctx, id, hosting("annual", enginetest.Date(2025, time.February, 1)))
	require.NoError(t, err)
	_, err = e.Schedules.SupersedeSchedule(ctx, id, hosting("annual", enginetest.Date(2025, time.March, 1)))
	assert.ErrorIs(t, err, domain.ErrScheduleSuperseded)
}

func TestListSchedulesByStatus(t *testing.T) {
	e := enginetest.New(t)
	ctx := context.Background()

	first, err := e.Schedules.CreateSchedule(ctx, hosting("monthly", enginetest.Date(2025, time.January, 15)))
	require.NoError(t, err)
	_, err = e.Schedules.SupersedeSchedule(ctx, first.Schedule.ID.String(), hosting("quarterly", enginetest.Date(2025, time.April, 1)))
	require.NoError(t, err)

	active, err := e.Schedules.List(ctx, domain.ListScheduleRequest{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, active.Schedules, 1)
	assert.Equal(t, domain.CadenceQuarterly, active.Schedules[0].Cadence)

	superseded, err := e.Schedules.List(ctx, domain.ListScheduleRequest{Status: domain.StatusSuperseded})
	require.NoError(t, err)
	require.Len(t, superseded.Schedules, 1)
	assert.Equal(t, first.Schedule.ID, superseded.Schedules[0].ID)

	_, err = e.Schedules.List(ctx, domain.ListScheduleRequest{Status: "paused"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = e.Schedules.Get(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}
