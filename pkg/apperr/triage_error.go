package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Validation errors
	CodeBadRequest    = "BAD_REQUEST"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeMissingField  = "MISSING_FIELD"
	CodeWebhookDecode = "WEBHOOK_DECODE_ERROR"

	// Resource errors
	CodeNotFound        = "NOT_FOUND"
	CodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	CodeNoCategories    = "NO_CATEGORIES"
	CodeDuplicate       = "DUPLICATE_MESSAGE"
	CodeConflict        = "CONFLICT"

	// External errors
	CodeProviderUnavailable       = "PROVIDER_UNAVAILABLE"
	CodeClassificationUnavailable = "CLASSIFICATION_UNAVAILABLE"
	CodeDatabaseError             = "DATABASE_ERROR"
	CodeTransactionFailure        = "TRANSACTION_FAILURE"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func WebhookDecode(err error) *AppError {
	return &AppError{
		Code:    CodeWebhookDecode,
		Message: "failed to decode notification payload",
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// AccountNotFound is fatal to an import run.
func AccountNotFound(accountID string) *AppError {
	return &AppError{
		Code:    CodeAccountNotFound,
		Message: fmt.Sprintf("account %s not found", accountID),
		Status:  http.StatusNotFound,
		Details: map[string]any{"account_id": accountID},
	}
}

// NoCategories is fatal to an import run: nothing to classify into.
func NoCategories(userID string) *AppError {
	return &AppError{
		Code:    CodeNoCategories,
		Message: "no categories defined; create at least one category before importing",
		Status:  http.StatusPreconditionFailed,
		Details: map[string]any{"user_id": userID},
	}
}

// DuplicateMessage marks a dedup-key collision. Callers treat it as a skip.
func DuplicateMessage(providerMessageID string) *AppError {
	return &AppError{
		Code:    CodeDuplicate,
		Message: fmt.Sprintf("message %s already imported", providerMessageID),
		Status:  http.StatusConflict,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// External errors
func ProviderUnavailable(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeProviderUnavailable,
		Message: fmt.Sprintf("mail provider unavailable: %s", operation),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"operation": operation},
		Err:     err,
	}
}

func ClassificationUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeClassificationUnavailable,
		Message: "classification service unavailable",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// TransactionFailure aborts a whole batch; nothing is partially applied.
func TransactionFailure(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeTransactionFailure,
		Message: fmt.Sprintf("transaction failed: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
