package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for the content index.
// It provides rich context for error handling, logging, and operator presentation.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_208_WRITE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the caller can retry the operation.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string

	// FailedIDs lists the value set ids a failed write did not apply.
	FailedIDs []string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with IndexError.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreUnavailable creates the error reported when an index store cannot be opened.
// It is fatal to that index only.
func StoreUnavailable(index string, cause error) *IndexError {
	return New(ErrCodeStoreUnavailable, fmt.Sprintf("index %s store unavailable", index), cause).
		WithDetail("index", index)
}

// WriteFailure creates the error returned when a batch commit fails.
// failedIDs are the ids the caller should resubmit.
func WriteFailure(index string, failedIDs []string, cause error) *IndexError {
	e := New(ErrCodeWriteFailed, fmt.Sprintf("index %s: batch of %d ids not committed", index, len(failedIDs)), cause).
		WithDetail("index", index)
	e.FailedIDs = failedIDs
	return e
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds an IndexError with Retryable set.
func IsRetryable(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an IndexError.
// Returns empty string if not an IndexError.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// FailedIDs returns the ids carried by a write failure anywhere in err's chain.
func FailedIDs(err error) []string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.FailedIDs
	}
	return nil
}
