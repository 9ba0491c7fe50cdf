package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidCredentials = errors.New("invalid credentials")

	// Both duplicate errors are conflicts; errors.Is(err, ErrConflict) holds for them.
	ErrDuplicateUsername = fmt.Errorf("duplicate username: %w", ErrConflict)
	ErrDuplicateEmail    = fmt.Errorf("duplicate email: %w", ErrConflict)

	// Federated login failures, one per handshake step.
	ErrNotConfigured       = errors.New("identity provider not configured")
	ErrProviderUnreachable = errors.New("identity provider unreachable")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrEmailNotVerified    = errors.New("email not verified")
)

type AppError struct {
	Err     error  // sentinel the error maps to
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned when no active session backs the request.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid username or password",
	}
}

func DuplicateUsername(username string) *AppError {
	return &AppError{
		Err:     ErrDuplicateUsername,
		Message: fmt.Sprintf("username %q is already taken", username),
		Field:   "username",
	}
}

func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: fmt.Sprintf("email %q is already registered", email),
		Field:   "email",
	}
}

// Provider wraps a federated login failure. kind must be one of the
// provider sentinels (ErrNotConfigured, ErrProviderUnreachable, ...).
func Provider(kind error, message string) *AppError {
	return &AppError{
		Err:     kind,
		Message: message,
	}
}

func EmailNotVerified(email string) *AppError {
	return &AppError{
		Err:     ErrEmailNotVerified,
		Message: fmt.Sprintf("email %s is not verified by the identity provider", email),
		Field:   "email",
	}
}
