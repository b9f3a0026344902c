package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

// Kind tags what an issued identifier was handed out for.
type Kind string

const (
	KindSchedule Kind = "schedule"
	KindInstance Kind = "instance"
	KindReceipt  Kind = "receipt"
	KindReserved Kind = "reserved"
)

// IssuedDocument is the permanent registry row of one identifier.
type IssuedDocument struct {
	DocumentID string        `gorm:"column:document_id;primaryKey" json:"document_id"`
	Prefix     string        `gorm:"column:prefix" json:"prefix"`
	Year       int           `gorm:"column:year" json:"year"`
	Month      int           `gorm:"column:month" json:"month"`
	Ordinal    int64         `gorm:"column:ordinal" json:"ordinal"`
	Kind       Kind          `gorm:"column:kind" json:"kind"`
	OwnerID    *snowflake.ID `gorm:"column:owner_id" json:"owner_id,omitempty"`
	CreatedAt  time.Time     `gorm:"column:created_at" json:"created_at"`
}

func (IssuedDocument) TableName() string { return "issued_documents" }

type Repository interface {
	// Increment advances the counter of p by one and returns the new value.
	Increment(ctx context.Context, db *gorm.DB, p Period, now time.Time) (int64, error)
	Current(ctx context.Context, db *gorm.DB, p Period) (int64, error)
	// Register records doc and reports false when the identifier is already taken.
	Register(ctx context.Context, db *gorm.DB, doc IssuedDocument) (bool, error)
	FindIssued(ctx context.Context, db *gorm.DB, documentID string) (*IssuedDocument, error)
}

// Allocator issues document identifiers.
type Allocator interface {
	// Issue allocates inside tx. The identifier only counts as issued once tx commits.
	Issue(ctx context.Context, tx *gorm.DB, prefix string, kind Kind, ownerID *snowflake.ID) (DocumentID, error)
	// NextDocumentID reserves an identifier in its own transaction.
	NextDocumentID(ctx context.Context, prefix string) (DocumentID, error)
	// Peek returns the identifier the next allocation would most likely get, without consuming it.
	Peek(ctx context.Context, prefix string) (DocumentID, error)
	Lookup(ctx context.Context, documentID string) (IssuedDocument, error)
}

var (
	ErrInvalidPrefix       = errs.Validation("invalid_document_prefix")
	ErrMalformedDocumentID = errs.Validation("malformed_document_id")
	ErrInvalidKind         = errs.Validation("invalid_document_kind")
	ErrAllocationExhausted = errs.Conflict("document_id_allocation_exhausted")
	ErrDocumentNotFound    = errs.NotFound("document_not_found")
	ErrTransactionRequired = errs.Integrity("transaction_required")
)
