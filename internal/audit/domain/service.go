package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionScheduleCreated    = "schedule.created"
	ActionScheduleSuperseded = "schedule.superseded"
	ActionInstanceCreated    = "instance.created"
	ActionInstanceRetired    = "instance.retired"
	ActionPaymentApplied     = "payment.applied"
	ActionPaymentEdited      = "payment.edited"
	ActionDocumentReserved   = "document.reserved"
)

const (
	TargetSchedule = "billing_schedule"
	TargetInstance = "billing_instance"
	TargetPayment  = "payment"
	TargetDocument = "document"
)

// AuditLog is an append-only record of a committed change.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Action        string            `gorm:"type:text;not null" json:"action"`
	TargetType    string            `gorm:"type:text;not null" json:"target_type"`
	TargetID      *string           `gorm:"type:text" json:"target_id,omitempty"`
	CorrelationID *string           `gorm:"type:text" json:"correlation_id,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	AfterID    snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidAction    = errs.Validation("invalid_action")
	ErrInvalidPageToken = errs.Validation("invalid_page_token")
	ErrInvalidTimeRange = errs.Validation("invalid_time_range")
)
