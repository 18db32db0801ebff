package relationaldb

import (
	"errors"
	"fmt"
	"strings"
)

// Error sentinels grouped by category.
var (
	// Configuration errors
	ErrMissingHost            = errors.New("database host is required")
	ErrMissingDatabase        = errors.New("database name is required")
	ErrMissingUsername        = errors.New("database username is required")
	ErrInvalidPort            = errors.New("invalid database port")
	ErrInvalidDriver          = errors.New("invalid database driver")
	ErrInvalidMaxOpenConns    = errors.New("max open connections must be >= 0")
	ErrInvalidMaxIdleConns    = errors.New("max idle connections must be >= 0")
	ErrMaxIdleExceedsMaxOpen  = errors.New("max idle connections cannot exceed max open connections")
	ErrInvalidTimeout         = errors.New("timeout must be positive")
	ErrInvalidConnMaxLifetime = errors.New("connection max lifetime must be >= 0")
	ErrInvalidConnMaxIdleTime = errors.New("connection max idle time must be >= 0")
	ErrInvalidMaxRetries      = errors.New("max retries must be >= 0")
	ErrInvalidRetryDelay      = errors.New("retry delay must be >= 0")
	ErrInvalidRetryMaxDelay   = errors.New("retry max delay must be >= retry delay")

	// Connection errors
	ErrDatabaseClosed    = errors.New("database connection is closed")
	ErrConnectionFailed  = errors.New("failed to connect to database")
	ErrConnectionTimeout = errors.New("database connection timeout")

	// Transaction errors
	ErrTransactionClosed       = errors.New("transaction is closed")
	ErrTransactionRollback     = errors.New("transaction was rolled back")
	ErrTransactionCommitFailed = errors.New("transaction commit failed")
	ErrDeadlock                = errors.New("database deadlock detected")

	// Constraint errors
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrConstraintViolation = errors.New("database constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
)

// ErrorType represents different categories of database errors.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfiguration
	ErrorTypeConnection
	ErrorTypeTransaction
	ErrorTypeData
	ErrorTypeConstraint
	ErrorTypeQuery
	ErrorTypeSchema
)

// DatabaseError provides detailed information about database errors.
type DatabaseError struct {
	Type      ErrorType `json:"type"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
	Retryable bool      `json:"retryable"`
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is worth retrying.
func (e *DatabaseError) IsRetryable() bool {
	return e.Retryable
}

// NewDatabaseError creates a new DatabaseError.
func NewDatabaseError(errorType ErrorType, operation, message string, cause error) *DatabaseError {
	return &DatabaseError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryableError(errorType, cause),
	}
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeConfiguration, operation, message, cause)
}

// NewConnectionError creates a connection error.
func NewConnectionError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeConnection, operation, message, cause)
}

// NewTransactionError creates a transaction error.
func NewTransactionError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeTransaction, operation, message, cause)
}

// NewDataError creates a data error.
func NewDataError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeData, operation, message, cause)
}

// NewConstraintError creates a constraint error.
func NewConstraintError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeConstraint, operation, message, cause)
}

// NewQueryError creates a query error.
func NewQueryError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeQuery, operation, message, cause)
}

// NewSchemaError creates a schema error.
func NewSchemaError(operation, message string, cause error) *DatabaseError {
	return NewDatabaseError(ErrorTypeSchema, operation, message, cause)
}

// isRetryableError classifies by type first, then by cause text for the
// ambiguous categories.
func isRetryableError(errorType ErrorType, cause error) bool {
	switch errorType {
	case ErrorTypeConnection:
		return true
	case ErrorTypeTransaction:
		return cause != nil && (containsFold(cause.Error(), "deadlock") ||
			containsFold(cause.Error(), "timeout") ||
			containsFold(cause.Error(), "serialize") ||
			containsFold(cause.Error(), "busy"))
	case ErrorTypeQuery:
		return cause != nil && (containsFold(cause.Error(), "timeout") ||
			containsFold(cause.Error(), "cancelled"))
	default:
		return false
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConstraintError checks if an error is a constraint error.
func IsConstraintError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Type == ErrorTypeConstraint
}

// IsDataError checks if an error is a data error.
func IsDataError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Type == ErrorTypeData
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Type == ErrorTypeConnection
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.Retryable
	}
	if err == nil {
		return false
	}
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"database is locked",
		"deadlock",
		"timeout",
		"busy",
	} {
		if containsFold(err.Error(), pattern) {
			return true
		}
	}
	return false
}

// WrapError wraps an error with database error context, classifying it by
// message when it is not already typed.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		newErr := *dbErr
		newErr.Operation = operation
		return &newErr
	}

	errStr := err.Error()
	var errorType ErrorType
	switch {
	case containsFold(errStr, "connect"):
		errorType = ErrorTypeConnection
	case containsFold(errStr, "transaction") || containsFold(errStr, "deadlock"):
		errorType = ErrorTypeTransaction
	case containsFold(errStr, "constraint") || containsFold(errStr, "duplicate") || containsFold(errStr, "unique"):
		errorType = ErrorTypeConstraint
	case containsFold(errStr, "not found") || containsFold(errStr, "no rows"):
		errorType = ErrorTypeData
	case containsFold(errStr, "syntax"):
		errorType = ErrorTypeQuery
	case containsFold(errStr, "table") || containsFold(errStr, "column") || containsFold(errStr, "schema"):
		errorType = ErrorTypeSchema
	default:
		errorType = ErrorTypeUnknown
	}

	return &DatabaseError{
		Type:      errorType,
		Operation: operation,
		Message:   errStr,
		Cause:     err,
		Retryable: isRetryableError(errorType, err),
	}
}
