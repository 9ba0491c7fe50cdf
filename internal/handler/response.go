package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "post not found with id abc123"}
// plus "field" when a single input field is to blame:
//   {"error": "duplicate_username", "message": "...", "field": "username"}
//
// The frontend can always rely on "error" being a stable machine-readable
// code, whatever the status.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/blog-platform/internal/apperror"
)

// maxJSONBody caps JSON request bodies. Image uploads use multipart and
// have their own limit.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Input field at fault, if any
}

// MessageResponse is the body of endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written. Once Encode
// writes, the headers are on the wire and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorMapping is checked in order; the first sentinel found in the error
// chain decides the response. The duplicate errors come before ErrConflict
// because they wrap it.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrDuplicateUsername, http.StatusConflict, "duplicate_username"},
	{apperror.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified"},
	{apperror.ErrNotConfigured, http.StatusServiceUnavailable, "not_configured"},
	{apperror.ErrProviderUnreachable, http.StatusBadGateway, "provider_unreachable"},
	{apperror.ErrTokenExchangeFailed, http.StatusBadGateway, "token_exchange_failed"},
	{apperror.ErrProfileFetchFailed, http.StatusBadGateway, "profile_fetch_failed"},
}

// errorStatus maps err to its HTTP status and error code. ok is false for
// errors that are not application errors.
func errorStatus(err error) (status int, code string, ok bool) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, "internal_error", false
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// This is the only place domain errors (from the service layer) become HTTP.
// Services return apperror sentinels wrapped in *apperror.AppError; the
// AppError carries the message and field shown to the client.
//
// Anything else is an internal failure. It is logged in full and the client
// gets a generic message: raw errors may contain SQL, file paths or other
// details that must not leak.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code, known := errorStatus(err)

	var appErr *apperror.AppError
	if known && errors.As(err, &appErr) {
		writeJSON(w, status, ErrorResponse{
			Error:   code,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON request body into dst. A malformed or oversized
// body is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be %d bytes or smaller", maxErr.Limit))
		}
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}
