package observability

import (
	"github.com/smallbiznis/backoffice/internal/observability/errorreport"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"github.com/smallbiznis/backoffice/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewSweepMetrics,
		errorreport.New,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(errorreport.RegisterHooks),
)
