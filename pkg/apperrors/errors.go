package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrConnection             = errors.New("connection failed")
	ErrExecution              = errors.New("execution failed")
	ErrCache                  = errors.New("cache failure")
	ErrNotImplemented         = errors.New("not yet implemented")
	ErrConnectionLimitReached = errors.New("connection limit reached")
)

// Kind classifies an engine error for callers and HTTP responses.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindNotFound       Kind = "NOT_FOUND"
	KindConnection     Kind = "CONNECTION_ERROR"
	KindExecution      Kind = "EXECUTION_ERROR"
	KindCache          Kind = "CACHE_ERROR"
	KindNotImplemented Kind = "NOT_IMPLEMENTED"
	KindInternal       Kind = "INTERNAL_SERVER_ERROR"
)

// Error is a classified error. Message is safe to show to callers; Err keeps
// the underlying cause (backend diagnostics included) for errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a classified error against the kind sentinels.
func (e *Error) Is(target error) bool {
	return sentinelFor(e.Kind) == target
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConnection:
		return ErrConnection
	case KindExecution:
		return ErrExecution
	case KindCache:
		return ErrCache
	case KindNotImplemented:
		return ErrNotImplemented
	default:
		return nil
	}
}

// Validation reports a malformed request. Never retried.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Invalid classifies err as a validation failure, keeping it for errors.Is.
func Invalid(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// NotFound reports a reference to an unknown resource.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Connection wraps a failure to establish or keep a backend session.
func Connection(err error, format string, args ...any) error {
	return &Error{Kind: KindConnection, Message: fmt.Sprintf(format, args...), Err: err}
}

// Execution wraps a backend query failure. The backend message stays in Err.
func Execution(err error, format string, args ...any) error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf(format, args...), Err: err}
}

// Cache wraps a cache store failure.
func Cache(err error, format string, args ...any) error {
	return &Error{Kind: KindCache, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotImplemented reports a connector type that is declared but has no driver.
func NotImplemented(format string, args ...any) error {
	return &Error{Kind: KindNotImplemented, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotImplemented):
		return KindNotImplemented
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status code the HTTP layer responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConnection:
		return http.StatusBadGateway
	case KindExecution:
		return http.StatusUnprocessableEntity
	case KindCache:
		return http.StatusServiceUnavailable
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
