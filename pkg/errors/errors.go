package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Custom error types for the authentication API
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidRole        = errors.New("invalid role")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")

	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// Validation errors
	ErrValidation      = errors.New("validation failed")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrInvalidUsername = errors.New("invalid username format")

	// Infrastructure errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrMalformedHash      = errors.New("malformed password hash")
	ErrEncryptionFailed   = errors.New("encryption failed")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")

	// Backup errors
	ErrBackupFailed = errors.New("backup operation failed")
)

// Client-facing messages. Lookup failures and wrong passwords share one
// message so the response never reveals whether an account exists.
const (
	MsgInvalidCredentials = "Invalid credentials or user not found"
	MsgAccountDeactivated = "Account is deactivated. Please contact administrator."
	MsgNotAuthenticated   = "Not authenticated"
	MsgNoToken            = "Access denied. No token provided."
	MsgInvalidToken       = "Invalid token"
	MsgUserNotFound       = "Invalid token or user not found"
	MsgForbidden          = "Access denied. Insufficient permissions."
	MsgRateLimited        = "Too many requests. Please try again later."
	MsgInternal           = "Internal server error. Please try again later."
)

// AppError wraps errors with a client-safe message and HTTP status
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Validation builds a 400 error carrying a message the client can act on.
func Validation(message string) *AppError {
	return NewAppError(ErrValidation, message, http.StatusBadRequest)
}

// Internal marks err as an unexpected failure. The cause stays available to
// server-side logging through errors.Unwrap but never reaches a response.
func Internal(err error) *AppError {
	return NewAppError(fmt.Errorf("%w: %w", ErrInternal, err), "", http.StatusInternalServerError)
}

// StatusCode maps an error onto the HTTP status the API responds with.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountDeactivated),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to the client for err.
func PublicMessage(err error) string {
	if errors.Is(err, ErrInternal) {
		return MsgInternal
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrInvalidRole):
		return MsgInvalidCredentials
	case errors.Is(err, ErrAccountDeactivated):
		return MsgAccountDeactivated
	case errors.Is(err, ErrNotAuthenticated):
		return MsgNotAuthenticated
	case errors.Is(err, ErrInvalidToken):
		return MsgInvalidToken
	case errors.Is(err, ErrForbidden):
		return MsgForbidden
	case errors.Is(err, ErrRateLimitExceeded):
		return MsgRateLimited
	case errors.Is(err, ErrAccountNotFound):
		return "Account not found"
	case errors.Is(err, ErrAccountExists):
		return "An account with these details already exists"
	case errors.Is(err, ErrWeakPassword):
		return "Password does not meet the requirements"
	case errors.Is(err, ErrInvalidEmail):
		return "Please provide a valid email address"
	case errors.Is(err, ErrInvalidUsername):
		return "Username must be 3-20 letters, digits or underscores"
	case errors.Is(err, ErrValidation):
		return "Invalid request"
	default:
		return MsgInternal
	}
}
