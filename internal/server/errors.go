package server

import (
	"net/http"

	"github.com/cockroachdb/errors"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/backoffice/pkg/errs"
)

type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors rejects a request before it reaches a service.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.CaptureException(lastErr.Err)
			}
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return errs.MarkValidation(&ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	})
}

// mapError turns an error kind into a response. Domain sentinels carry their
// code as the innermost message, which becomes the error code of the payload.
func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    errs.CodeValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	status := errs.HTTPStatus(err)
	code := errs.Code(err)
	switch code {
	case errs.CodeValidation:
		return status, errorPayload{
			Type:    code,
			Message: "validation error",
			Errors:  []ValidationError{{Code: sentinelCode(err), Message: err.Error()}},
		}
	case errs.CodeNotFound:
		return status, errorPayload{Type: code, Message: sentinelCode(err)}
	case errs.CodeConflict:
		return status, errorPayload{Type: code, Message: "the request conflicted with a concurrent change, retry it"}
	default:
		return status, errorPayload{Type: code, Message: "internal server error"}
	}
}

// sentinelCode is the message of the innermost cause, e.g. "invalid_cadence".
func sentinelCode(err error) string {
	return errors.UnwrapAll(err).Error()
}
