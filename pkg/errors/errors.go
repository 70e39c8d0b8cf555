package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSegmentExists    = errors.New("segment already exists")
	ErrNoValidDocs      = errors.New("no valid documents")
	ErrInvalidFormat    = errors.New("invalid segment format")
	ErrInvalidArgs      = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
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

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSegmentExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgs), errors.Is(err, ErrNoValidDocs):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidFormat), errors.Is(err, ErrValidationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
