// Package errors provides the API-facing error type of the governance service
// and its mapping from domain errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"bizcore.io/governance/internal/domain"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// AppError is a structured application error with HTTP status and error code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "INVALID_TRANSITION").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// Params carries structured context such as entity_type or number.
	Params map[string]any `json:"params,omitempty"`

	// FieldErrors carries field-level validation details.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// WithParams attaches structured parameters to the error.
func (e *AppError) WithParams(params map[string]any) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	e.Params = params
	return e
}

// WithFieldErrors attaches field-level errors to the AppError.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// NotFound creates a 404 error.
func NotFound(code, message string) *AppError {
	return New(code, message, http.StatusNotFound)
}

// BadRequest creates a 400 error.
func BadRequest(code, message string) *AppError {
	return New(code, message, http.StatusBadRequest)
}

// Unauthorized creates a 401 error.
func Unauthorized(code, message string) *AppError {
	return New(code, message, http.StatusUnauthorized)
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *AppError {
	return New(code, message, http.StatusForbidden)
}

// Conflict creates a 409 error.
func Conflict(code, message string) *AppError {
	return New(code, message, http.StatusConflict)
}

// Unprocessable creates a 422 error.
func Unprocessable(code, message string) *AppError {
	return New(code, message, http.StatusUnprocessableEntity)
}

// Internal creates a 500 error.
func Internal(code, message string) *AppError {
	return New(code, message, http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromDomain maps a governance error to an AppError. Errors that carry no
// governance meaning become a 500 with the cause hidden from the client.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr
	}

	var (
		invalid   *domain.InvalidTransitionError
		locked    *domain.LockedStateError
		missing   *domain.MissingStateDefinitionError
		noRule    *domain.NoRuleDefinedError
		disabled  *domain.NumberingDisabledError
		assigned  *domain.AlreadyAssignedError
		duplicate *domain.DuplicateNumberError
		immutable *domain.ImmutableRecordError
		invalidIn *domain.ValidationError
	)

	switch {
	case errors.As(err, &invalid):
		params := map[string]any{
			"entity_type": invalid.EntityType,
			"from_state":  invalid.FromState,
			"to_state":    invalid.ToState,
		}
		if invalid.Detail != "" {
			params["detail"] = invalid.Detail
		}
		return Wrap(err, CodeInvalidTransition, invalid.Reason, http.StatusConflict).WithParams(params)
	case errors.As(err, &locked):
		return Wrap(err, CodeStateLocked, "record is locked for editing", http.StatusConflict).
			WithParams(map[string]any{"entity_type": locked.EntityType, "state": locked.State})
	case errors.As(err, &missing):
		return Wrap(err, CodeStateDefinitionMissing, "state definitions are not configured", http.StatusUnprocessableEntity).
			WithParams(map[string]any{"entity_type": missing.EntityType})
	case errors.As(err, &noRule):
		return Wrap(err, CodeNumberingRuleMissing, "no numbering rule defined", http.StatusUnprocessableEntity).
			WithParams(map[string]any{"entity_type": noRule.EntityType})
	case errors.As(err, &disabled):
		return Wrap(err, CodeNumberingDisabled, "numbering is disabled", http.StatusUnprocessableEntity).
			WithParams(map[string]any{"entity_type": disabled.EntityType})
	case errors.As(err, &assigned):
		return Wrap(err, CodeNumberAlreadyAssigned, "number already assigned", http.StatusConflict).
			WithParams(map[string]any{"entity_type": assigned.EntityType, "entity_id": assigned.EntityID, "number": assigned.Number})
	case errors.As(err, &duplicate):
		return Wrap(err, CodeDuplicateNumber, "generated number already exists", http.StatusInternalServerError).
			WithParams(map[string]any{"entity_type": duplicate.EntityType, "number": duplicate.Number})
	case errors.As(err, &immutable):
		return Wrap(err, CodeImmutableRecord, "record is immutable", http.StatusConflict)
	case errors.As(err, &invalidIn):
		fields := make([]FieldError, 0, len(invalidIn.Violations))
		for _, v := range invalidIn.Violations {
			fields = append(fields, FieldError{Field: v.Field, Code: v.Rule})
		}
		return Wrap(err, CodeValidationFailed, "request validation failed", http.StatusBadRequest).WithFieldErrors(fields)
	case errors.Is(err, ErrNotFound):
		return Wrap(err, CodeNotFound, "resource not found", http.StatusNotFound)
	default:
		return Wrap(err, CodeInternal, "internal server error", http.StatusInternalServerError)
	}
}
