// Package errs defines the error kinds every engine operation reports.
//
// Domain packages declare their own sentinel errors and mark them with one of
// the kinds below, so callers can branch on the kind without knowing every
// sentinel:
//
//	var ErrInvalidCadence = errs.Validation("invalid_cadence")
//
//	if errs.IsValidation(err) { ... }
//
// Matching must go through this package or cockroachdb/errors. The standard
// library errors.Is does not see marks.
package errs

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

const (
	CodeValidation = "validation_error"
	CodeConflict   = "conflict"
	CodeNotFound   = "not_found"
	CodeIntegrity  = "integrity_error"
	CodeInternal   = "internal_error"
)

var (
	ErrValidation = errors.New(CodeValidation)
	ErrConflict   = errors.New(CodeConflict)
	ErrNotFound   = errors.New(CodeNotFound)
	ErrIntegrity  = errors.New(CodeIntegrity)
)

func Validation(msg string) error { return errors.Mark(errors.New(msg), ErrValidation) }
func Conflict(msg string) error   { return errors.Mark(errors.New(msg), ErrConflict) }
func NotFound(msg string) error   { return errors.Mark(errors.New(msg), ErrNotFound) }
func Integrity(msg string) error  { return errors.Mark(errors.New(msg), ErrIntegrity) }

// MarkConflict tags err as retryable while keeping it in the chain.
func MarkConflict(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrConflict)
}

// MarkValidation tags err as a rejected request.
func MarkValidation(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrValidation)
}

// MarkIntegrity tags err as an invariant breach.
func MarkIntegrity(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrIntegrity)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsIntegrity(err error) bool  { return errors.Is(err, ErrIntegrity) }

// Code returns the machine-readable kind of err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsIntegrity(err):
		return CodeIntegrity
	case IsValidation(err):
		return CodeValidation
	case IsNotFound(err):
		return CodeNotFound
	case IsConflict(err):
		return CodeConflict
	default:
		return CodeInternal
	}
}

func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the whole operation may be attempted again.
func Retryable(err error) bool {
	return IsConflict(err) && !IsIntegrity(err)
}
