// Package domain holds billing instances: one dated bill with its own settlement state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusNotPaid PaymentStatus = "not_paid"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusRefund  PaymentStatus = "refund"
)

// NoteSuperseded marks instances retired by a schedule supersession.
const NoteSuperseded = "superseded"

// MoneyScale is the number of decimal places money columns keep.
const MoneyScale = 2

// IsMoney reports whether d is stored exactly at MoneyScale.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

type Instance struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	ScheduleID    *snowflake.ID   `gorm:"index" json:"schedule_id,omitempty"`
	DocumentID    string          `gorm:"type:text;not null;uniqueIndex" json:"document_id"`
	CustomerRef   string          `gorm:"type:text;not null" json:"customer_ref"`
	ProductRef    string          `gorm:"type:text;not null" json:"product_ref"`
	Quantity      int64           `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"unit_price"`
	DueDate       time.Time       `gorm:"type:date;not null" json:"due_date"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	PaidAmount    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"paid_amount"`
	Balance       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"balance"`
	PaymentStatus PaymentStatus   `gorm:"type:text;not null" json:"payment_status"`
	Active        bool            `gorm:"not null" json:"active"`
	Note          *string         `gorm:"type:text" json:"note,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (Instance) TableName() string { return "billing_instances" }

// IsPaid reports whether nothing is left to collect.
func (i Instance) IsPaid() bool {
	return i.Balance.IsZero()
}

// Settle sets the paid amount and derives balance and status from it.
// It fails without touching i when the result would break the balance invariant.
func (i *Instance) Settle(paid decimal.Decimal, now time.Time) error {
	if paid.IsNegative() {
		return ErrNegativePaidAmount
	}
	balance := i.Amount.Sub(paid)
	if balance.IsNegative() {
		return ErrNegativeBalance
	}

	i.PaidAmount = paid
	i.Balance = balance
	if balance.IsZero() {
		i.PaymentStatus = PaymentStatusPaid
	} else {
		i.PaymentStatus = PaymentStatusNotPaid
	}
	i.UpdatedAt = now
	return i.CheckInvariant()
}

// CheckInvariant verifies balance = amount - paid, balance >= 0 and that the
// status agrees with the balance.
func (i Instance) CheckInvariant() error {
	if i.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	if !i.Balance.Equal(i.Amount.Sub(i.PaidAmount)) {
		return ErrBalanceMismatch
	}
	if i.Balance.IsZero() != (i.PaymentStatus == PaymentStatusPaid) {
		return ErrStatusMismatch
	}
	return nil
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
