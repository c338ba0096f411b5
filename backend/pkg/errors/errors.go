package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeStore represents structural violations found while loading facts
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeQuery represents lookup errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeSchema represents attribute schema errors
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeSync represents graph database sync errors
	ErrorTypeSync ErrorType = "sync"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrType reports the category, used by IsErrorType through embedding.
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Query Errors

// ErrNotFound signals absence: an unknown key, a missing schema or binding,
// or a field that is not part of a schema.
var ErrNotFound = NewBaseError(ErrorTypeQuery, "not found", nil)

// ErrNoMatch is returned when a prefix matches no note key
var ErrNoMatch = NewBaseError(ErrorTypeQuery, "no match", nil)

// ErrAliasCycle is returned when alias resolution revisits a key
type ErrAliasCycle struct {
	*BaseError
	Chain []string
}

func NewAliasCycle(chain []string) *ErrAliasCycle {
	return &ErrAliasCycle{
		BaseError: NewBaseError(ErrorTypeQuery, fmt.Sprintf("alias cycle: %s", strings.Join(chain, " -> ")), nil),
		Chain:     chain,
	}
}

// Store Errors

// ErrDuplicateKey is returned when a key that must be unique is declared twice
type ErrDuplicateKey struct {
	*BaseError
	Kind      string
	Key       string
	Line      int
	FirstLine int
}

func NewDuplicateKey(kind, key string, line, firstLine int) *ErrDuplicateKey {
	return &ErrDuplicateKey{
		BaseError: NewBaseError(ErrorTypeStore,
			fmt.Sprintf("duplicate %s %q on line %d (first declared on line %d)", kind, key, line, firstLine), nil),
		Kind:      kind,
		Key:       key,
		Line:      line,
		FirstLine: firstLine,
	}
}

// Schema Errors

// ErrSchemaMismatch is returned when a value list and its schema differ in length
type ErrSchemaMismatch struct {
	*BaseError
	NoteKey    string
	TagKey     string
	FieldCount int
	ValueCount int
}

func NewSchemaMismatch(noteKey, tagKey string, fieldCount, valueCount int) *ErrSchemaMismatch {
	return &ErrSchemaMismatch{
		BaseError: NewBaseError(ErrorTypeSchema,
			fmt.Sprintf("schema mismatch for %s/%s: %d fields, %d values", noteKey, tagKey, fieldCount, valueCount), nil),
		NoteKey:    noteKey,
		TagKey:     tagKey,
		FieldCount: fieldCount,
		ValueCount: valueCount,
	}
}

// Sync Errors

// ErrSyncTransport wraps a failure reported by the graph database client
type ErrSyncTransport struct {
	*BaseError
	Operation string
	Target    string
}

func NewSyncTransport(operation, target string, err error) *ErrSyncTransport {
	return &ErrSyncTransport{
		BaseError: NewBaseError(ErrorTypeSync, fmt.Sprintf("%s %s failed", operation, target), err),
		Operation: operation,
		Target:    target,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if typed, ok := err.(interface{ ErrType() ErrorType }); ok && typed.ErrType() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRecoverable reports whether err signals absence rather than malfunction.
func IsRecoverable(err error) bool {
	if stderrors.Is(err, ErrNotFound) || stderrors.Is(err, ErrNoMatch) {
		return true
	}
	var mismatch *ErrSchemaMismatch
	return stderrors.As(err, &mismatch)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Every sync operation is an idempotent merge, so a transport failure
	// can always be retried by re-running the whole sync.
	var transport *ErrSyncTransport
	return stderrors.As(err, &transport)
}
