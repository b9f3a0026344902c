package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

type CreateScheduleRequest struct {
	CustomerRef  string          `json:"customer_ref"`
	ProductRef   string          `json:"product_ref"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int64           `json:"quantity"`
	Cadence      string          `json:"cadence"`
	AnchorDate   time.Time       `json:"anchor_date"`
	Category     string          `json:"category,omitempty"`
	AccountOwner string          `json:"account_owner,omitempty"`
	BankAccount  string          `json:"bank_account,omitempty"`
}

// CreateScheduleResult carries a nil Schedule when the cadence was occasional
// and only a one-off instance was created.
type CreateScheduleResult struct {
	Schedule  *Schedule                 `json:"schedule,omitempty"`
	Instances []instancedomain.Instance `json:"instances"`
}

// SupersedeRequest describes the replacing terms. Empty customer, product and
// metadata fields are carried over from the superseded schedule.
type SupersedeRequest = CreateScheduleRequest

type SupersedeResult struct {
	Previous  Schedule                  `json:"previous"`
	Schedule  Schedule                  `json:"schedule"`
	Retired   []instancedomain.Instance `json:"retired"`
	Instances []instancedomain.Instance `json:"instances"`
}

type ListScheduleRequest struct {
	pagination.Pagination
	CustomerRef string `form:"customer_ref"`
	Status      Status `form:"status"`
}

type ListScheduleResponse struct {
	pagination.PageInfo
	Schedules []Schedule `json:"schedules"`
}

type ListFilter struct {
	CustomerRef string
	Status      Status
	AfterID     snowflake.ID
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, schedule *Schedule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Schedule, error)
	// LockByID holds a row lock on the schedule until the transaction ends.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Schedule, error)
	MarkSuperseded(ctx context.Context, db *gorm.DB, id, successorID snowflake.ID, now time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Schedule, error)
	ListActiveIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}

type Service interface {
	CreateSchedule(ctx context.Context, req CreateScheduleRequest) (CreateScheduleResult, error)
	SupersedeSchedule(ctx context.Context, scheduleID string, req SupersedeRequest) (SupersedeResult, error)
	Get(ctx context.Context, id string) (Schedule, error)
	List(ctx context.Context, req ListScheduleRequest) (ListScheduleResponse, error)
}

var (
	ErrInvalidID           = errs.Validation("invalid_schedule_id")
	ErrInvalidCustomer     = errs.Validation("invalid_customer")
	ErrInvalidProduct      = errs.Validation("invalid_product")
	ErrInvalidQuantity     = errs.Validation("invalid_quantity")
	ErrInvalidUnitPrice    = errs.Validation("invalid_unit_price")
	ErrUnitPriceScale      = errs.Validation("unit_price_exceeds_cents")
	ErrInvalidCadence      = errs.Validation("invalid_cadence")
	ErrInvalidAnchorDate   = errs.Validation("invalid_anchor_date")
	ErrInvalidStatus       = errs.Validation("invalid_schedule_status")
	ErrInvalidPageToken    = errs.Validation("invalid_page_token")
	ErrOccasionalSuccessor = errs.Validation("occasional_cadence_cannot_supersede")
	ErrScheduleSuperseded  = errs.Validation("schedule_already_superseded")
	ErrScheduleNotFound    = errs.NotFound("schedule_not_found")
)
