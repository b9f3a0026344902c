package pdf

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleInvoice() InvoiceData {
	return InvoiceData{
		DocumentID:   "TKB/01007/25",
		CustomerRef:  "Warung Sejahtera",
		ProductRef:   "Stall rent",
		Category:     "rent",
		AccountOwner: "Pak Budi",
		BankAccount:  "BCA 0123456789",
		IssueDate:    time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("75"),
		Amount:       decimal.RequireFromString("150"),
		PaidAmount:   decimal.Zero,
		Balance:      decimal.RequireFromString("150"),
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "invoice-tkb-01007-25.pdf", FileName("invoice", "TKB/01007/25"))
	assert.Equal(t, "receipt-rcp-121000-30.pdf", FileName("receipt", "RCP/121000/30"))
}

func TestFileRendererWritesPDFs(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRenderer(filepath.Join(dir, "out"), zap.NewNop())
	require.NoError(t, err)

	path, err := r.RenderInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "invoice-tkb-01007-25.pdf"), path)
	assertPDF(t, path)

	path, err = r.RenderReceipt(context.Background(), ReceiptData{
		ReceiptID:      "TKB/01008/25",
		Invoice:        sampleInvoice(),
		PaymentDate:    time.Date(2025, time.January, 16, 0, 0, 0, 0, time.UTC),
		AmountTendered: decimal.RequireFromString("200"),
		AmountApplied:  decimal.RequireFromString("150"),
		BalanceAfter:   decimal.Zero,
	})
	require.NoError(t, err)
	assertPDF(t, path)
}

func TestNewHonoursRenderSwitch(t *testing.T) {
	r, err := New(config.Config{DocumentRenderEnabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NoOpRenderer{}, r)

	r, err = New(config.Config{DocumentRenderEnabled: true, DocumentOutputDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileRenderer{}, r)

	_, err = New(config.Config{DocumentRenderEnabled: true}, zap.NewNop())
	assert.Error(t, err)
}

func assertPDF(t *testing.T, path string) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}
