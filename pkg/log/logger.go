package log

import (
	"context"

	"github.com/smallbiznis/backoffice/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// L returns the global logger enriched with correlation and tracing metadata.
func L(ctx context.Context) *zap.Logger {
	return ctxlogger.FromContext(ctx)
}

// With enriches base with the same metadata as L.
func With(ctx context.Context, base *zap.Logger) *zap.Logger {
	return ctxlogger.WithContext(ctx, base)
}
