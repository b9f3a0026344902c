package pdf

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/backoffice/internal/config"
	"go.uber.org/zap"
)

// InvoiceData is everything printed on an invoice.
type InvoiceData struct {
	DocumentID   string
	CustomerRef  string
	ProductRef   string
	Category     string
	AccountOwner string
	BankAccount  string
	IssueDate    time.Time
	DueDate      time.Time
	Quantity     int64
	UnitPrice    decimal.Decimal
	Amount       decimal.Decimal
	PaidAmount   decimal.Decimal
	Balance      decimal.Decimal
}

type ReceiptData struct {
	ReceiptID      string
	Invoice        InvoiceData
	PaymentDate    time.Time
	AmountTendered decimal.Decimal
	AmountApplied  decimal.Decimal
	BalanceAfter   decimal.Decimal
}

// Renderer turns committed documents into files and returns their paths.
type Renderer interface {
	RenderInvoice(ctx context.Context, data InvoiceData) (string, error)
	RenderReceipt(ctx context.Context, data ReceiptData) (string, error)
}

type NoOpRenderer struct{}

func (NoOpRenderer) RenderInvoice(context.Context, InvoiceData) (string, error) { return "", nil }
func (NoOpRenderer) RenderReceipt(context.Context, ReceiptData) (string, error) { return "", nil }

// FileRenderer writes PDFs into a single directory.
type FileRenderer struct {
	dir string
	log *zap.Logger
}

func NewFileRenderer(dir string, log *zap.Logger) (*FileRenderer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("document output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create document output directory")
	}
	return &FileRenderer{dir: dir, log: log.Named("pdf.renderer")}, nil
}

// New picks the file renderer when rendering is enabled and the no-op one otherwise.
func New(cfg config.Config, log *zap.Logger) (Renderer, error) {
	if !cfg.DocumentRenderEnabled {
		return NoOpRenderer{}, nil
	}
	return NewFileRenderer(cfg.DocumentOutputDir, log)
}

func (r *FileRenderer) RenderInvoice(ctx context.Context, data InvoiceData) (string, error) {
	doc, err := buildInvoice(data)
	if err != nil {
		return "", errors.Wrapf(err, "render invoice %s", data.DocumentID)
	}
	return r.write("invoice", data.DocumentID, doc)
}

func (r *FileRenderer) RenderReceipt(ctx context.Context, data ReceiptData) (string, error) {
	doc, err := buildReceipt(data)
	if err != nil {
		return "", errors.Wrapf(err, "render receipt %s", data.ReceiptID)
	}
	return r.write("receipt", data.ReceiptID, doc)
}

func (r *FileRenderer) write(kind, documentID string, content []byte) (string, error) {
	path := filepath.Join(r.dir, FileName(kind, documentID))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	r.log.Debug("document written", zap.String("kind", kind), zap.String("path", path))
	return path, nil
}

// FileName derives a filesystem-safe name, e.g. invoice TKB/01007/25 becomes invoice-tkb-01007-25.pdf.
func FileName(kind, documentID string) string {
	return slug.Make(kind+" "+strings.ReplaceAll(documentID, "/", " ")) + ".pdf"
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006")
}
