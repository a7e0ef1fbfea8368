package handler

// RESPONSE HELPERS:
// Every error response has the same shape:
//
//	{"error": "Contains spam content"}
//
// The message is the caller-facing reason carried by *apperror.AppError.
// Anything that is not an AppError becomes a generic 500 so storage and
// library details never leak.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/motto-wall/internal/apperror"
)

// MsgUnexpected is returned for errors outside the apperror taxonomy.
const MsgUnexpected = "An unexpected error occurred"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON sets headers and status before writing the body; once the body
// starts, headers are sent and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrCaptcha):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to a status code and {"error": ...} body.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, statusFor(err), ErrorResponse{Error: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: MsgUnexpected})
}
