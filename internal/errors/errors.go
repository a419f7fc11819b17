package errors

import (
	stderrors "errors"
	"fmt"
)

// DocragError is the structured error type for docrag.
// It carries enough context for logging, HTTP mapping and CLI presentation.
type DocragError struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_INDEX").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
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
func (e *DocragError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocragError) Unwrap() error {
	return e.Cause
}

// Is matches another DocragError by code, so errors.Is works against
// sentinel values built with New.
func (e *DocragError) Is(target error) bool {
	if t, ok := target.(*DocragError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DocragError) WithDetail(key, value string) *DocragError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocragError) WithSuggestion(suggestion string) *DocragError {
	e.Suggestion = suggestion
	return e
}

// WithRetryable overrides the retryable flag derived from the code.
func (e *DocragError) WithRetryable(retryable bool) *DocragError {
	e.Retryable = retryable
	return e
}

// New creates a new DocragError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocragError {
	return &DocragError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocragError from an existing error.
// The error's message becomes the DocragError message.
func Wrap(code string, err error) *DocragError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ChunkingError reports a document that could not be chunked.
func ChunkingError(path string, cause error) *DocragError {
	return New(ErrCodeChunkingFailed, fmt.Sprintf("failed to chunk %s", path), cause).
		WithDetail("path", path)
}

// CorruptIndex reports persisted index artifacts that cannot be trusted.
func CorruptIndex(message string, cause error) *DocragError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("rebuild the index with 'docrag ingest --force'")
}

// EmptyIndex reports a query against an index with no vectors.
func EmptyIndex() *DocragError {
	return New(ErrCodeEmptyIndex, "index contains no vectors", nil).
		WithSuggestion("run 'docrag ingest' to build the index")
}

// EmbeddingFailure reports a failed call to the embedding provider.
func EmbeddingFailure(message string, cause error) *DocragError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocragError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocragError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *DocragError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocragError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first DocragError in err's chain.
func As(err error) (*DocragError, bool) {
	var de *DocragError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsCode reports whether any DocragError in err's chain has the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, &DocragError{Code: code})
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if de, ok := As(err); ok {
		return de.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if de, ok := As(err); ok {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a DocragError.
// Returns empty string if there is none in the chain.
func GetCode(err error) string {
	if de, ok := As(err); ok {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DocragError.
func GetCategory(err error) Category {
	if de, ok := As(err); ok {
		return de.Category
	}
	return ""
}
