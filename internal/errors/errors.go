package errors

import (
	stderrors "errors"
	"fmt"
)

// KBError is the structured error type used across amankb.
// It carries enough context for logging, CLI rendering and tool results.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_208_NOT_INDEXED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is matches another KBError by code, so errors.Is works against the
// sentinel values below.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *KBError) WithSuggestion(suggestion string) *KBError {
	e.Suggestion = suggestion
	return e
}

// New creates a KBError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error, reusing its message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. Only the Code is compared.
var (
	ErrPathDenied      = &KBError{Code: ErrCodePathDenied}
	ErrNotIndexed      = &KBError{Code: ErrCodeNotIndexed}
	ErrMalformedFilter = &KBError{Code: ErrCodeMalformedFilter}
	ErrEmbedding       = &KBError{Code: ErrCodeEmbeddingFailed}
	ErrStore           = &KBError{Code: ErrCodeStoreFailed}
)

// PathDenied reports a root outside the allowed-directories policy.
func PathDenied(path string) *KBError {
	return New(ErrCodePathDenied, fmt.Sprintf("Path not allowed: %s", path), nil).
		WithDetail("path", path).
		WithSuggestion("add the directory to allowed_dirs or KB_ALLOWED_DIRS")
}

// NotIndexed reports a search against a root without a collection.
func NotIndexed(path string) *KBError {
	return New(ErrCodeNotIndexed, "Directory not indexed", nil).
		WithDetail("path", path).
		WithSuggestion(fmt.Sprintf("run 'amankb index %s' first", path))
}

// MalformedFilter reports a filter rejected before reaching the store.
func MalformedFilter(message string) *KBError {
	return New(ErrCodeMalformedFilter, message, nil)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsRetryable checks if an error in the chain is a retryable KBError.
func IsRetryable(err error) bool {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// GetCode extracts the code of the first KBError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Code
	}
	return ""
}
