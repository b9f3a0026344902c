package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseCadence(t *testing.T) {
	c, err := ParseCadence(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, CadenceMonthly, c)

	_, err = ParseCadence("fortnightly")
	assert.ErrorIs(t, err, ErrInvalidCadence)

	assert.False(t, CadenceOccasional.Recurring())
	assert.True(t, CadenceWeekly.Recurring())
}

func TestDueDateClampsWithoutDrift(t *testing.T) {
	anchor := day(2025, time.January, 31)
	want := []time.Time{
		day(2025, time.January, 31),
		day(2025, time.February, 28),
		day(2025, time.March, 31),
		day(2025, time.April, 30),
		day(2025, time.May, 31),
	}
	for k, w := range want {
		assert.Equal(t, w, CadenceMonthly.DueDate(anchor, k), "k=%d", k)
	}
}

func TestDueDatePerCadence(t *testing.T) {
	anchor := day(2024, time.February, 29)

	assert.Equal(t, day(2024, time.May, 29), CadenceQuarterly.DueDate(anchor, 1))
	assert.Equal(t, day(2025, time.February, 28), CadenceAnnual.DueDate(anchor, 1))
	assert.Equal(t, day(2028, time.February, 29), CadenceAnnual.DueDate(anchor, 4))
	assert.Equal(t, day(2024, time.March, 14), CadenceWeekly.DueDate(anchor, 2))
	assert.Equal(t, day(2025, time.January, 29), CadenceMonthly.DueDate(anchor, 11))
	assert.Equal(t, anchor, CadenceOccasional.DueDate(anchor, 3))
}

func TestNextCrossesYearEnd(t *testing.T) {
	assert.Equal(t, day(2026, time.January, 15), CadenceMonthly.Next(day(2025, time.December, 15)))
	assert.Equal(t, day(2026, time.February, 28), CadenceQuarterly.Next(day(2025, time.November, 30)))
}

func TestFirstAfterCountsFromAnchor(t *testing.T) {
	anchor := day(2025, time.January, 31)

	due, k := CadenceMonthly.FirstAfter(anchor, day(2025, time.February, 28))
	assert.Equal(t, day(2025, time.March, 31), due)
	assert.Equal(t, 2, k)

	due, k = CadenceMonthly.FirstAfter(anchor, day(2025, time.February, 27))
	assert.Equal(t, day(2025, time.February, 28), due)
	assert.Equal(t, 1, k)

	due, k = CadenceMonthly.FirstAfter(anchor, day(2024, time.December, 1))
	assert.Equal(t, anchor, due)
	assert.Equal(t, 0, k)

	due, _ = CadenceOccasional.FirstAfter(anchor, day(2025, time.June, 1))
	assert.Equal(t, anchor, due)
}

func TestScheduleAmount(t *testing.T) {
	s := Schedule{Quantity: 3, UnitPrice: decimal.RequireFromString("12.50"), Status: StatusActive}
	assert.Equal(t, "37.5", s.Amount().String())
	assert.True(t, s.IsActive())
}
