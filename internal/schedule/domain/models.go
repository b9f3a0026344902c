// Package domain describes billing schedules: recurring terms that produce billing instances.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// Schedule holds the economic terms of a recurring bill. The terms are fixed
// once stored; changing them means superseding the schedule.
type Schedule struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	DocumentID   string          `gorm:"type:text;not null;uniqueIndex" json:"document_id"`
	CustomerRef  string          `gorm:"type:text;not null" json:"customer_ref"`
	ProductRef   string          `gorm:"type:text;not null" json:"product_ref"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"unit_price"`
	Quantity     int64           `gorm:"not null" json:"quantity"`
	Cadence      Cadence         `gorm:"type:text;not null" json:"cadence"`
	AnchorDate   time.Time       `gorm:"type:date;not null" json:"anchor_date"`
	Status       Status          `gorm:"type:text;not null" json:"status"`
	Category     *string         `gorm:"type:text" json:"category,omitempty"`
	AccountOwner *string         `gorm:"type:text" json:"account_owner,omitempty"`
	BankAccount  *string         `gorm:"type:text" json:"bank_account,omitempty"`
	SupersededBy *snowflake.ID   `json:"superseded_by,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (Schedule) TableName() string { return "billing_schedules" }

// Amount is what every instance of the schedule bills.
func (s Schedule) Amount() decimal.Decimal {
	return s.UnitPrice.Mul(decimal.NewFromInt(s.Quantity))
}

func (s Schedule) IsActive() bool {
	return s.Status == StatusActive
}
