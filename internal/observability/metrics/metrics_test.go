package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "receipt"),
		attribute.String("customer_ref", "ACME"),
		attribute.String("outcome", "paid"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "customer_ref" {
			t.Fatalf("customer_ref must not be exported")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordDocumentIssued(ctx, "receipt")
	m.RecordAllocationConflict(ctx)
	m.RecordInstancesGenerated(ctx, "catch_up", 3)
	m.RecordPaymentApplied(ctx, "paid")
	m.RecordSuccessorGenerated(ctx)
	m.RecordTxRetry(ctx, "apply_payment")
}

func TestRecordDocumentIssued(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "backoffice-test"}, provider)
	require.NoError(t, err)

	m.RecordDocumentIssued(context.Background(), "instance")
	m.RecordDocumentIssued(context.Background(), "instance")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "backoffice_documents_issued_total" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}
