// Package domain holds the payment ledger: receipts recorded against billing instances.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Payment is one receipt. AmountTendered is what the customer handed over and
// AmountApplied the part that went against the instance balance.
type Payment struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	InstanceID     snowflake.ID    `gorm:"not null;index" json:"instance_id"`
	DocumentID     string          `gorm:"type:text;not null;uniqueIndex" json:"document_id"`
	AmountTendered decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount_tendered"`
	AmountApplied  decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount_applied"`
	PaymentDate    time.Time       `gorm:"type:date;not null" json:"payment_date"`
	BalanceAfter   decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"balance_after"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Change is the part of a tender above what was owed.
func (p Payment) Change() decimal.Decimal {
	return p.AmountTendered.Sub(p.AmountApplied)
}
