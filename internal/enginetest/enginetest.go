// Package enginetest wires the billing services onto a throwaway sqlite
// database for package tests.
package enginetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	catchupdomain "github.com/smallbiznis/backoffice/internal/catchup/domain"
	catchupservice "github.com/smallbiznis/backoffice/internal/catchup/service"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	instancerepo "github.com/smallbiznis/backoffice/internal/instance/repository"
	instanceservice "github.com/smallbiznis/backoffice/internal/instance/service"
	paymentdomain "github.com/smallbiznis/backoffice/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/backoffice/internal/payment/repository"
	paymentservice "github.com/smallbiznis/backoffice/internal/payment/service"
	"github.com/smallbiznis/backoffice/internal/providers/pdf"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	schedulerepo "github.com/smallbiznis/backoffice/internal/schedule/repository"
	scheduleservice "github.com/smallbiznis/backoffice/internal/schedule/service"
	sequencedomain "github.com/smallbiznis/backoffice/internal/sequence/domain"
	sequencerepo "github.com/smallbiznis/backoffice/internal/sequence/repository"
	sequenceservice "github.com/smallbiznis/backoffice/internal/sequence/service"
	"github.com/smallbiznis/backoffice/pkg/db/dbtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Start is the default wall time of an Engine: 2025-01-15 09:00 UTC.
var Start = time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

type Engine struct {
	DB       *gorm.DB
	Clock    *clock.FakeClock
	Config   *config.EngineConfigHolder
	Audit    *RecordingAudit
	Renderer *RecordingRenderer

	InstanceRepo instancedomain.Repository
	ScheduleRepo scheduledomain.Repository
	PaymentRepo  paymentdomain.Repository

	Sequence  sequencedomain.Allocator
	Instances instancedomain.Service
	Schedules scheduledomain.Service
	CatchUp   catchupdomain.Generator
	Payments  paymentdomain.Service
}

// New builds an Engine. mutate adjusts the engine config before services start.
func New(t testing.TB, mutate ...func(*config.EngineConfig)) *Engine {
	t.Helper()

	cfg := config.DefaultEngineConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	e := &Engine{
		DB:           dbtest.Open(t),
		Clock:        clock.NewFakeClock(Start),
		Config:       config.NewStaticEngineConfig(cfg),
		Audit:        &RecordingAudit{},
		Renderer:     &RecordingRenderer{},
		InstanceRepo: instancerepo.Provide(),
		ScheduleRepo: schedulerepo.Provide(),
		PaymentRepo:  paymentrepo.Provide(),
	}
	log := zap.NewNop()

	e.Sequence = sequenceservice.Provide(sequenceservice.Params{
		DB:     e.DB,
		Log:    log,
		Clock:  e.Clock,
		Engine: e.Config,
		Repo:   sequencerepo.Provide(),
	})
	e.Instances = instanceservice.NewService(instanceservice.Params{
		DB:        e.DB,
		Log:       log,
		GenID:     node,
		Clock:     e.Clock,
		Engine:    e.Config,
		Repo:      e.InstanceRepo,
		Allocator: e.Sequence,
		AuditSvc:  e.Audit,
		Renderer:  e.Renderer,
	})
	e.CatchUp = catchupservice.NewService(catchupservice.Params{
		DB:        e.DB,
		Log:       log,
		GenID:     node,
		Clock:     e.Clock,
		Engine:    e.Config,
		Schedules: e.ScheduleRepo,
		Instances: e.InstanceRepo,
		Allocator: e.Sequence,
		AuditSvc:  e.Audit,
		Renderer:  e.Renderer,
	})
	e.Schedules = scheduleservice.NewService(scheduleservice.Params{
		DB:          e.DB,
		Log:         log,
		GenID:       node,
		Clock:       e.Clock,
		Engine:      e.Config,
		Repo:        e.ScheduleRepo,
		Instances:   e.InstanceRepo,
		InstanceSvc: e.Instances,
		Allocator:   e.Sequence,
		Generator:   e.CatchUp,
		AuditSvc:    e.Audit,
	})
	e.Payments = paymentservice.NewService(paymentservice.Params{
		DB:        e.DB,
		Log:       log,
		GenID:     node,
		Clock:     e.Clock,
		Engine:    e.Config,
		Repo:      e.PaymentRepo,
		Instances: e.InstanceRepo,
		Schedules: e.ScheduleRepo,
		Allocator: e.Sequence,
		Generator: e.CatchUp,
		AuditSvc:  e.Audit,
		Renderer:  e.Renderer,
	})
	return e
}

// Date is midnight UTC of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDates lists the due dates of instances as YYYY-MM-DD.
func DueDates(instances []instancedomain.Instance) []string {
	out := make([]string, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.DueDate.Format(time.DateOnly))
	}
	return out
}

// ScheduleInstances reads every instance of a schedule ordered by due date.
func (e *Engine) ScheduleInstances(t testing.TB, scheduleID snowflake.ID) []instancedomain.Instance {
	t.Helper()
	var items []instancedomain.Instance
	if err := e.DB.Where("schedule_id = ?", scheduleID).Order("due_date asc").Find(&items).Error; err != nil {
		t.Fatalf("load instances: %v", err)
	}
	return items
}

type AuditEntry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// RecordingAudit keeps audit entries in memory.
type RecordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *RecordingAudit) Record(_ context.Context, action, targetType, targetID string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, AuditEntry{Action: action, TargetType: targetType, TargetID: targetID, Metadata: metadata})
	return nil
}

func (a *RecordingAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

// Actions returns the recorded actions in order.
func (a *RecordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func (a *RecordingAudit) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}

// RecordingRenderer remembers what it was asked to render. Err, when set, is returned for every call.
type RecordingRenderer struct {
	mu       sync.Mutex
	Err      error
	invoices []pdf.InvoiceData
	receipts []pdf.ReceiptData
}

func (r *RecordingRenderer) RenderInvoice(_ context.Context, data pdf.InvoiceData) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices = append(r.invoices, data)
	return pdf.FileName("invoice", data.DocumentID), r.Err
}

func (r *RecordingRenderer) RenderReceipt(_ context.Context, data pdf.ReceiptData) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, data)
	return pdf.FileName("receipt", data.ReceiptID), r.Err
}

func (r *RecordingRenderer) Invoices() []pdf.InvoiceData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pdf.InvoiceData(nil), r.invoices...)
}

func (r *RecordingRenderer) Receipts() []pdf.ReceiptData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pdf.ReceiptData(nil), r.receipts...)
}
