// Package apperror defines the domain error taxonomy shared by the service and
// handler layers.
//
// Every error that can reach a caller is an *AppError carrying a short,
// human-readable Message from a small closed set. The wrapped sentinel (Err)
// decides the HTTP status; see handler.writeError for the mapping.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrCaptcha     = errors.New("captcha error")
	ErrRateLimited = errors.New("rate limited")
	ErrInternal    = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel that classifies the error
	Message string // caller-facing reason
	Field   string // optional: request field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with number %s", resource, key),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// CaptchaFailed covers missing, out-of-range and wrong captcha answers.
// HTTP handlers map this to 400 Bad Request.
func CaptchaFailed(message string) *AppError {
	return &AppError{
		Err:     ErrCaptcha,
		Message: message,
		Field:   "captcha_answer",
	}
}

// RateLimited returns an AppError for callers over their submission quota.
// HTTP handlers map this to 429 Too Many Requests. The message carries no
// detail about the remaining window.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}

// Internal returns a generic caller-facing error. The underlying cause must be
// logged by the caller and is never attached here.
func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
	}
}
