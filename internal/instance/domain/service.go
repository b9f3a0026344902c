package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

type CreateOneOffRequest struct {
	CustomerRef string          `json:"customer_ref" binding:"required"`
	ProductRef  string          `json:"product_ref" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
	DueDate     time.Time       `json:"due_date"`
	Note        string          `json:"note,omitempty"`
}

type ListInstanceRequest struct {
	pagination.Pagination
	CustomerRef   string        `form:"customer_ref"`
	ScheduleID    string        `form:"schedule_id"`
	PaymentStatus PaymentStatus `form:"payment_status"`
	ActiveOnly    bool          `form:"active_only"`
}

type ListInstanceResponse struct {
	pagination.PageInfo
	Instances []Instance `json:"instances"`
}

// ListFilter is the repository form of ListInstanceRequest.
type ListFilter struct {
	CustomerRef   string
	ScheduleID    *snowflake.ID
	PaymentStatus PaymentStatus
	ActiveOnly    bool
	AfterID       snowflake.ID
	Limit         int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inst *Instance) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Instance, error)
	// LockByID loads the instance with a row lock held until the transaction ends.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Instance, error)
	ExistsForDueDate(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID, dueDate time.Time) (bool, error)
	// LatestActiveDueDate returns nil when the schedule has no active instance.
	LatestActiveDueDate(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID) (*time.Time, error)
	UpdateSettlement(ctx context.Context, db *gorm.DB, inst *Instance) error
	// RetireUnpaid deactivates every unpaid instance of a schedule and returns them.
	RetireUnpaid(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID, note string, now time.Time) ([]*Instance, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Instance, error)
	ListUnpaidByCustomer(ctx context.Context, db *gorm.DB, customerRef string) ([]*Instance, error)
}

type Service interface {
	CreateOneOffInstance(ctx context.Context, req CreateOneOffRequest) (Instance, error)
	Get(ctx context.Context, id string) (Instance, error)
	List(ctx context.Context, req ListInstanceRequest) (ListInstanceResponse, error)
	ListUnpaidByCustomer(ctx context.Context, customerRef string) ([]Instance, error)
}

var (
	ErrInvalidID          = errs.Validation("invalid_instance_id")
	ErrInvalidCustomer    = errs.Validation("invalid_customer")
	ErrInvalidProduct     = errs.Validation("invalid_product")
	ErrInvalidQuantity    = errs.Validation("invalid_quantity")
	ErrInvalidUnitPrice   = errs.Validation("invalid_unit_price")
	ErrUnitPriceScale     = errs.Validation("unit_price_exceeds_cents")
	ErrInvalidDueDate     = errs.Validation("invalid_due_date")
	ErrInvalidPageToken   = errs.Validation("invalid_page_token")
	ErrInvalidStatus      = errs.Validation("invalid_payment_status")
	ErrInstanceNotFound   = errs.NotFound("instance_not_found")
	ErrNegativePaidAmount = errs.Integrity("negative_paid_amount")
	ErrNegativeBalance    = errs.Integrity("negative_balance")
	ErrBalanceMismatch    = errs.Integrity("balance_mismatch")
	ErrStatusMismatch     = errs.Integrity("payment_status_mismatch")
)
