package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Pipeline failures that degrade instead of aborting
	ErrTypeSchemaLoad      ErrorType = "schema_load"
	ErrTypePromptAgent     ErrorType = "prompt_agent"
	ErrTypeExtraction      ErrorType = "extraction"
	ErrTypeUnsafeStatement ErrorType = "unsafe_statement"

	// Caller input errors, surfaced before any network call
	ErrTypeEmptyPrompt ErrorType = "empty_prompt"
	ErrTypeNoTables    ErrorType = "no_tables"

	// Execution gate
	ErrTypeUnsafeQuery ErrorType = "unsafe_query"
	ErrTypeExecution   ErrorType = "execution"

	ErrTypeDatabase   ErrorType = "database"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeConfig     ErrorType = "config"
	ErrTypeNetwork    ErrorType = "network"
	ErrTypeInternal   ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// MessageOf returns the message of a structured error without its type
// prefix or cause, and err.Error() otherwise
func MessageOf(err error) string {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Message
	}

	return err.Error()
}

// SuggestionsOf collects the suggestions of every structured error in err's chain
func SuggestionsOf(err error) []string {
	var out []string

	for err != nil {
		var structErr *Error
		if !errors.As(err, &structErr) {
			break
		}

		out = append(out, structErr.Suggestions...)
		err = structErr.Cause
	}

	return out
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewUnsafeQueryError reports a statement refused by the execution gate
func NewUnsafeQueryError(sql string) *Error {
	return Newf(ErrTypeUnsafeQuery, "only SELECT statements may be executed: %q", truncate(sql, 80)).
		WithSuggestion("Run write statements through your own migration or admin tooling")
}

// NewSchemaLoadError reports a table that could not be introspected
func NewSchemaLoadError(table string, cause error) *Error {
	return Wrapf(cause, ErrTypeSchemaLoad, "failed to introspect table %s", table)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
