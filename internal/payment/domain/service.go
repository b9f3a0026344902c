package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
}

// PaymentResult is the committed state after a payment was applied or edited.
// Successors holds the next-period instance created when the payment settled
// the latest bill of a schedule.
type PaymentResult struct {
	Payment    Payment                   `json:"payment"`
	Instance   instancedomain.Instance   `json:"instance"`
	Successors []instancedomain.Instance `json:"successors,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// ListByInstance returns payments in creation order.
	ListByInstance(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) ([]*Payment, error)
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
}

type Service interface {
	ApplyPayment(ctx context.Context, instanceID string, req PaymentRequest) (PaymentResult, error)
	EditLatestPayment(ctx context.Context, paymentID string, req PaymentRequest) (PaymentResult, error)
	ListPayments(ctx context.Context, instanceID string) ([]Payment, error)
}

var (
	ErrInvalidID           = errs.Validation("invalid_payment_id")
	ErrInvalidInstanceID   = errs.Validation("invalid_instance_id")
	ErrInvalidAmount       = errs.Validation("invalid_payment_amount")
	ErrAmountScale         = errs.Validation("payment_amount_exceeds_cents")
	ErrInvalidPaymentDate  = errs.Validation("invalid_payment_date")
	ErrInstanceInactive    = errs.Validation("instance_inactive")
	ErrInstanceAlreadyPaid = errs.Validation("instance_already_paid")
	ErrOverpayment         = errs.Validation("payment_exceeds_balance")
	ErrNotLatestPayment    = errs.Validation("payment_not_latest")
	ErrPaymentNotFound     = errs.NotFound("payment_not_found")
	ErrLedgerMismatch      = errs.Integrity("payment_ledger_mismatch")
)
