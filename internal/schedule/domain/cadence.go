package domain

import (
	"strings"
	"time"
)

// Cadence is how often a schedule falls due.
type Cadence string

const (
	CadenceMonthly    Cadence = "monthly"
	CadenceQuarterly  Cadence = "quarterly"
	CadenceAnnual     Cadence = "annual"
	CadenceWeekly     Cadence = "weekly"
	CadenceOccasional Cadence = "occasional"
)

// ParseCadence accepts any casing of the catalog names.
func ParseCadence(raw string) (Cadence, error) {
	c := Cadence(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CadenceMonthly, CadenceQuarterly, CadenceAnnual, CadenceWeekly, CadenceOccasional:
		return c, nil
	default:
		return "", ErrInvalidCadence
	}
}

// Recurring is false for occasional billing, which never produces a schedule.
func (c Cadence) Recurring() bool {
	switch c {
	case CadenceMonthly, CadenceQuarterly, CadenceAnnual, CadenceWeekly:
		return true
	default:
		return false
	}
}

// DueDate returns the k-th due date counted from anchor. Each date is derived
// from the anchor directly, so a schedule anchored on the 31st comes back to
// the 31st after a short month.
func (c Cadence) DueDate(anchor time.Time, k int) time.Time {
	switch c {
	case CadenceMonthly:
		return addMonths(anchor, k)
	case CadenceQuarterly:
		return addMonths(anchor, 3*k)
	case CadenceAnnual:
		return addMonths(anchor, 12*k)
	case CadenceWeekly:
		return anchor.AddDate(0, 0, 7*k)
	default:
		return anchor
	}
}

// Next is one step after t.
func (c Cadence) Next(t time.Time) time.Time {
	return c.DueDate(t, 1)
}

// FirstAfter returns the earliest due date counted from anchor that falls
// strictly after t, along with its index. Dates before the anchor give the
// anchor itself.
func (c Cadence) FirstAfter(anchor, t time.Time) (time.Time, int) {
	if !c.Recurring() {
		return anchor, 0
	}
	for k := 0; ; k++ {
		if due := c.DueDate(anchor, k); due.After(t) {
			return due, k
		}
	}
}

// addMonths moves t by n calendar months, clamping the day to the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	year := y + floorDiv(total, 12)
	month := time.Month(total-floorDiv(total, 12)*12 + 1)
	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
