package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/internal/sequence/repository"
	"github.com/smallbiznis/backoffice/internal/sequence/service"
	"github.com/smallbiznis/backoffice/pkg/db/dbtest"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   *service.Service
}

func newFixture(t *testing.T, mutate ...func(*config.EngineConfig)) *fixture {
	t.Helper()

	cfg := config.DefaultEngineConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	conn := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2025, time.January, 15, 9, 30, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  clk,
		Engine: config.NewStaticEngineConfig(cfg),
		Repo:   repository.Provide(),
	})
	return &fixture{db: conn, clock: clk, svc: svc}
}

func (f *fixture) issue(t *testing.T, prefix string) domain.DocumentID {
	t.Helper()
	var id domain.DocumentID
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = f.svc.Issue(context.Background(), tx, prefix, domain.KindInstance, nil)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestIssueStartsAtOneAndFormats(t *testing.T) {
	f := newFixture(t)

	first := f.issue(t, "")
	second := f.issue(t, "TKB")

	assert.Equal(t, "TKB/01001/25", first.String())
	assert.Equal(t, "TKB/01002/25", second.String())
}

func TestIssueRequiresTransaction(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Issue(context.Background(), nil, "TKB", domain.KindInstance, nil)
	assert.ErrorIs(t, err, domain.ErrTransactionRequired)
	assert.True(t, errs.IsIntegrity(err))
}

func TestIssueRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Issue(context.Background(), tx, "T/B", domain.KindInstance, nil)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrefix)
	assert.True(t, errs.IsValidation(err))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Issue(context.Background(), tx, "TKB", domain.Kind("voucher"), nil)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestIssueResetsEveryMonth(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(time.Date(2025, time.January, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, "TKB/01001/25", f.issue(t, "TKB").String())
	assert.Equal(t, "TKB/01002/25", f.issue(t, "TKB").String())

	f.clock.Set(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "TKB/02001/25", f.issue(t, "TKB").String())

	f.clock.Set(time.Date(2026, time.January, 3, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "TKB/01001/26", f.issue(t, "TKB").String())
}

func TestIssueKeepsPrefixesApart(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "TKB/01001/25", f.issue(t, "TKB").String())
	assert.Equal(t, "RCP/01001/25", f.issue(t, "rcp").String())
	assert.Equal(t, "TKB/01002/25", f.issue(t, "TKB").String())
}

func TestIssueSkipsIdentifiersAlreadyRegistered(t *testing.T) {
	f := newFixture(t)

	// An identifier imported from an earlier system, with no counter behind it.
	require.NoError(t, f.db.Exec(
		`INSERT INTO issued_documents (document_id, prefix, year, month, ordinal, kind, created_at)
		 VALUES ('TKB/01001/25', 'TKB', 2025, 1, 1, 'instance', CURRENT_TIMESTAMP)`,
	).Error)

	assert.Equal(t, "TKB/01002/25", f.issue(t, "TKB").String())
}

func TestIssueGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, func(c *config.EngineConfig) { c.MaxAllocationAttempts = 2 })

	for _, id := range []string{"TKB/01001/25", "TKB/01002/25"} {
		doc, err := domain.Parse(id)
		require.NoError(t, err)
		ok, err := repository.Provide().Register(context.Background(), f.db, domain.IssuedDocument{
			DocumentID: id,
			Prefix:     doc.Prefix,
			Year:       doc.Year,
			Month:      doc.Month,
			Ordinal:    doc.Ordinal,
			Kind:       domain.KindReserved,
			CreatedAt:  f.clock.Now(),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Issue(context.Background(), tx, "TKB", domain.KindInstance, nil)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAllocationExhausted)
	assert.True(t, errs.IsConflict(err))

	// The failed transaction rolled its counter moves back.
	peek, err := f.svc.Peek(context.Background(), "TKB")
	require.NoError(t, err)
	assert.Equal(t, int64(1), peek.Ordinal)
}

func TestRolledBackIssueDoesNotCount(t *testing.T) {
	f := newFixture(t)

	_ = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Issue(context.Background(), tx, "TKB", domain.KindInstance, nil)
		require.NoError(t, err)
		return assert.AnError
	})

	assert.Equal(t, "TKB/01001/25", f.issue(t, "TKB").String())
}

func TestPeekDoesNotConsume(t *testing.T) {
	f := newFixture(t)

	peek, err := f.svc.Peek(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "TKB/01001/25", peek.String())

	again, err := f.svc.Peek(context.Background(), "TKB")
	require.NoError(t, err)
	assert.Equal(t, peek, again)

	assert.Equal(t, peek, f.issue(t, "TKB"))

	next, err := f.svc.Peek(context.Background(), "TKB")
	require.NoError(t, err)
	assert.Equal(t, "TKB/01002/25", next.String())
}

func TestNextDocumentIDReservesAndRegisters(t *testing.T) {
	f := newFixture(t)

	id, err := f.svc.NextDocumentID(context.Background(), "TKB")
	require.NoError(t, err)
	assert.Equal(t, "TKB/01001/25", id.String())

	doc, err := f.svc.Lookup(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, domain.KindReserved, doc.Kind)
	assert.Equal(t, int64(1), doc.Ordinal)

	_, err = f.svc.Lookup(context.Background(), "TKB/01999/25")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.True(t, errs.IsNotFound(err))

	_, err = f.svc.Lookup(context.Background(), "not-an-id")
	assert.True(t, errs.IsValidation(err))
}

// The sqlite test store holds a single connection, so these callers queue on
// it. Contention between connections is settled by the counter upsert.
func TestParallelCallersGetGapFreeOrdinals(t *testing.T) {
	f := newFixture(t)
	const n = 25

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make(map[int64]string, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.svc.NextDocumentID(context.Background(), "TKB")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			got[id.Ordinal] = id.String()
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, n)
	for i := int64(1); i <= n; i++ {
		assert.Contains(t, got, i)
	}
}
