package ctxlogger

import (
	"context"
	"testing"

	"github.com/smallbiznis/backoffice/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationAndOperation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetServiceName("backoffice")

	ctx := correlation.ContextWithCorrelationID(context.Background(), "cid-1")
	ctx = ContextWithOperation(ctx, "apply_payment")

	WithContext(ctx, zap.New(core)).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "cid-1", fields["correlation_id"])
		assert.Equal(t, "apply_payment", fields["operation"])
		assert.Equal(t, "backoffice", fields["service"])
		assert.NotContains(t, fields, "trace_id")
	}
}
