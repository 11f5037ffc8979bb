package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrMalformedValue     = errors.New("malformed stored value")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidNamespace   = errors.New("invalid model namespace")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Unavailable wraps cause as a backend failure for the given operation and key.
func Unavailable(op, key string, cause error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, ErrBackendUnavailable, cause)
}

// Malformed wraps cause as a decoding failure for the value stored at key.
func Malformed(key string, cause error) error {
	return fmt.Errorf("value at %q: %w: %w", key, ErrMalformedValue, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidNamespace):
		return http.StatusBadRequest
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
