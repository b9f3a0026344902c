package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/audit/repository"
	"github.com/smallbiznis/backoffice/internal/audit/service"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/pkg/db/dbtest"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/smallbiznis/backoffice/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) auditdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return service.NewService(service.Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestRecordMasksAndCorrelates(t *testing.T) {
	svc := newService(t)
	ctx := correlation.ContextWithCorrelationID(context.Background(), "01JCORRELATION")

	err := svc.Record(ctx, auditdomain.ActionScheduleCreated, auditdomain.TargetSchedule, "TKB/03001/25", map[string]any{
		"bank_account": "0011223344",
		"cadence":      "monthly",
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActionScheduleCreated, entry.Action)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "TKB/03001/25", *entry.TargetID)
	require.NotNil(t, entry.CorrelationID)
	assert.Equal(t, "01JCORRELATION", *entry.CorrelationID)
	assert.Equal(t, "****3344", entry.Metadata["bank_account"])
	assert.Equal(t, "monthly", entry.Metadata["cadence"])
}

func TestRecordRequiresAction(t *testing.T) {
	svc := newService(t)
	err := svc.Record(context.Background(), " ", auditdomain.TargetInstance, "", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
	assert.True(t, errs.IsValidation(err))
}

func TestListPagesNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, target := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Record(ctx, auditdomain.ActionInstanceCreated, auditdomain.TargetInstance, target, nil))
	}

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "c", *first.AuditLogs[0].TargetID)
	assert.Equal(t, "b", *first.AuditLogs[1].TargetID)

	req.PageToken = first.NextPageToken
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "a", *second.AuditLogs[0].TargetID)

	req.PageToken = "%%%"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc := newService(t)
	start := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
