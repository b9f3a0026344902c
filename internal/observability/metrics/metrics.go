package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing engine instruments. A nil *Metrics records nothing.
type Metrics struct {
	documentsIssued     metric.Int64Counter
	allocationConflicts metric.Int64Counter
	instancesGenerated  metric.Int64Counter
	paymentsApplied     metric.Int64Counter
	successorsGenerated metric.Int64Counter
	txRetries           metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the engine instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "backoffice"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.documentsIssued, err = meter.Int64Counter("backoffice_documents_issued_total"); err != nil {
		return nil, err
	}
	if m.allocationConflicts, err = meter.Int64Counter("backoffice_allocation_conflicts_total"); err != nil {
		return nil, err
	}
	if m.instancesGenerated, err = meter.Int64Counter("backoffice_instances_generated_total"); err != nil {
		return nil, err
	}
	if m.paymentsApplied, err = meter.Int64Counter("backoffice_payments_applied_total"); err != nil {
		return nil, err
	}
	if m.successorsGenerated, err = meter.Int64Counter("backoffice_successors_generated_total"); err != nil {
		return nil, err
	}
	if m.txRetries, err = meter.Int64Counter("backoffice_tx_retries_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordDocumentIssued counts identifiers handed out per document kind.
func (m *Metrics) RecordDocumentIssued(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.documentsIssued.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

// RecordAllocationConflict counts identifiers skipped because the registry already held them.
func (m *Metrics) RecordAllocationConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.allocationConflicts.Add(ctx, 1)
}

func (m *Metrics) RecordInstancesGenerated(ctx context.Context, source string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.instancesGenerated.Add(ctx, int64(count), metric.WithAttributes(FilterAttributes(attribute.String("source", source))...))
}

func (m *Metrics) RecordPaymentApplied(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordSuccessorGenerated(ctx context.Context) {
	if m == nil {
		return
	}
	m.successorsGenerated.Add(ctx, 1)
}

func (m *Metrics) RecordTxRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.txRetries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("operation", operation))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":      {},
	"source":    {},
	"outcome":   {},
	"operation": {},
	"reason":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
