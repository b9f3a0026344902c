package correlation

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// HeaderName carries the correlation ID across HTTP hops.
const HeaderName = "X-Correlation-ID"

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Middleware reuses an inbound correlation header or mints one, and echoes it back.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(HeaderName))
		ctx := c.Request.Context()
		if cid != "" {
			ctx = ContextWithCorrelationID(ctx, cid)
		} else {
			ctx, cid = EnsureCorrelationID(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderName, cid)
		c.Next()
	}
}
