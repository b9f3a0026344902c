// Package domain describes catch-up generation: materializing every billing
// instance a schedule owes up to a date, plus one period of look-ahead.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

// Source names what triggered a generation. It labels metrics and audit entries.
type Source string

const (
	SourceScheduleCreated Source = "schedule_created"
	SourceSupersession    Source = "supersession"
	SourceCatchUp         Source = "catch_up"
	SourceSuccessor       Source = "successor"
	SourceSweep           Source = "sweep"
)

type RunResult struct {
	Schedule  scheduledomain.Schedule   `json:"schedule"`
	Instances []instancedomain.Instance `json:"instances"`
}

type ScheduleOutcome struct {
	ScheduleID snowflake.ID `json:"schedule_id"`
	Generated  int          `json:"generated"`
	Skipped    bool         `json:"skipped,omitempty"`
}

type SweepResult struct {
	AsOf      time.Time         `json:"as_of"`
	Schedules int               `json:"schedules"`
	Generated int               `json:"generated"`
	Outcomes  []ScheduleOutcome `json:"outcomes"`
}

type Generator interface {
	// GenerateDue runs inside tx and locks the schedule row. Inactive schedules generate nothing.
	GenerateDue(ctx context.Context, tx *gorm.DB, schedule scheduledomain.Schedule, asOf time.Time) ([]instancedomain.Instance, error)
	RunCatchUp(ctx context.Context, scheduleID string, asOf time.Time) (RunResult, error)
	// Sweep catches up every active schedule. Per-schedule failures are joined into the error.
	Sweep(ctx context.Context, asOf time.Time) (SweepResult, error)
	// Publish renders and audits instances after their transaction committed.
	Publish(ctx context.Context, source Source, schedule scheduledomain.Schedule, instances []instancedomain.Instance)
}

var (
	ErrTransactionRequired = errs.Integrity("transaction_required")
	ErrNotRecurring        = errs.Validation("schedule_not_recurring")
)
