package errors

import (
	"fmt"
)

// LoreError is the structured error type for loreleaf.
// It provides rich context for error handling, logging, and user presentation.
type LoreError struct {
	// Code is the unique error code (e.g., "ERR_502_SCORER_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Service, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *LoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LoreError.
func (e *LoreError) Is(target error) bool {
	if t, ok := target.(*LoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LoreError) WithDetail(key, value string) *LoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *LoreError) WithSuggestion(suggestion string) *LoreError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LoreError {
	return &LoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LoreError from an existing error.
// The error's message becomes the LoreError message.
func Wrap(code string, err error) *LoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *LoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates an index/store-related error.
func StorageError(message string, cause error) *LoreError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// ValidationError creates a request validation error.
func ValidationError(message string, cause error) *LoreError {
	return New(ErrCodeInvalidRequest, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *LoreError {
	return New(ErrCodeInternal, message, cause)
}

// ScorerUnavailable marks one retrieval path as unreachable. Non-fatal:
// the orchestrator proceeds with the remaining path.
func ScorerUnavailable(scorer string, cause error) *LoreError {
	return New(ErrCodeScorerUnavailable,
		fmt.Sprintf("%s scorer unavailable", scorer), cause).
		WithDetail("scorer", scorer)
}

// ScorerTimeout marks one retrieval path as having exceeded its stage
// budget. Non-fatal, same handling as ScorerUnavailable.
func ScorerTimeout(scorer string, cause error) *LoreError {
	return New(ErrCodeScorerTimeout,
		fmt.Sprintf("%s scorer exceeded its stage budget", scorer), cause).
		WithDetail("scorer", scorer)
}

// RerankerUnavailable reports a reranker failure. The caller falls back
// to the fused ranking; this never surfaces as a request error.
func RerankerUnavailable(cause error) *LoreError {
	return New(ErrCodeRerankerUnavailable, "reranker unavailable", cause).
		WithSuggestion("fused ranking is used until the reranker recovers")
}

// AllPathsFailed reports that both scorer paths failed. This is the only
// fatal search outcome; there is nothing meaningful to rank.
func AllPathsFailed(cause error) *LoreError {
	return New(ErrCodeAllPathsFailed, "all retrieval paths failed", cause).
		WithSuggestion("check lexical and vector index health with `loreleaf status`")
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a LoreError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LoreError); ok {
		return le.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if le, ok := err.(*LoreError); ok {
		return le.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a LoreError.
// Returns empty string if not a LoreError.
func GetCode(err error) string {
	if le, ok := err.(*LoreError); ok {
		return le.Code
	}
	return ""
}

// GetCategory extracts the category from a LoreError.
// Returns empty string if not a LoreError.
func GetCategory(err error) Category {
	if le, ok := err.(*LoreError); ok {
		return le.Category
	}
	return ""
}
