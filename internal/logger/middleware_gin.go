package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"github.com/smallbiznis/backoffice/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// GinMiddleware logs one line per request. Run it after the correlation middleware.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	base = base.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}

		log := ctxlogger.WithContext(c.Request.Context(), base)
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.String("error_code", errs.Code(lastErr.Err)), zap.Error(lastErr.Err))
		}

		switch {
		case status >= 500:
			log.Error("http.request", fields...)
		case status >= 400:
			log.Warn("http.request", fields...)
		default:
			log.Info("http.request", fields...)
		}
	}
}
