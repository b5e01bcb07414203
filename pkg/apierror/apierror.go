// Package apierror generalizes the teacher's pkg/errors.CodeError into
// the error taxonomy this system's components agree on: validation,
// conflict, not-found, dependency-unavailable, persistence, unexpected.
package apierror

import "net/http"

// Kind is one of the error taxonomy members from the error-handling design.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindDependency Kind = "dependency_unavailable"
	KindPersistence Kind = "persistence"
	KindUnexpected Kind = "unexpected"
)

// Error is the single error type every handler and service returns for
// anything that should reach the client as a structured response.
type Error struct {
	Kind    Kind
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Detail + ": " + e.Cause.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps a Kind to the HTTP status code the error-handling design
// prescribes for it.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindDependency:
		return http.StatusServiceUnavailable
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

func Validation(detail string) *Error  { return New(KindValidation, detail) }
func Conflict(detail string) *Error    { return New(KindConflict, detail) }
func NotFound(detail string) *Error    { return New(KindNotFound, detail) }
func BadRequest(detail string) *Error  { return New(KindBadRequest, detail) }
func Dependency(detail string, cause error) *Error {
	return Wrap(KindDependency, detail, cause)
}
func Persistence(detail string, cause error) *Error {
	return Wrap(KindPersistence, detail, cause)
}
func Unexpected(cause error) *Error {
	return Wrap(KindUnexpected, "internal server error", cause)
}

// From coerces any error into *Error, defaulting to KindUnexpected if it
// isn't already one — the same role the teacher's FromError plays.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return Unexpected(err)
}
