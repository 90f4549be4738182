package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeInsufficientHistory means a fill operation had no seed value for
	// the leading rows of the requested range.
	ErrTypeInsufficientHistory ErrorType = "INSUFFICIENT_HISTORY"
	// ErrTypeMalformedBar means aggregation input violated OHLC ordering or
	// grouping preconditions.
	ErrTypeMalformedBar ErrorType = "MALFORMED_BAR"
	// ErrTypeSourceUnavailable means a collaborator failed to supply data.
	// Loader failures are never converted to an empty series.
	ErrTypeSourceUnavailable ErrorType = "SOURCE_UNAVAILABLE"
	// ErrTypeConfig covers conflicting column names, missing threshold
	// configuration, invalid date ranges and broken settings.
	ErrTypeConfig ErrorType = "CONFIG"
	// ErrTypeParsing covers malformed source files and payloads.
	ErrTypeParsing ErrorType = "PARSING"
	// ErrTypeStorage covers persister failures.
	ErrTypeStorage ErrorType = "STORAGE"
	// ErrTypeNotFound covers missing logical resources (series, reports).
	ErrTypeNotFound ErrorType = "NOT_FOUND"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper constructors for the error taxonomy

// NewInsufficientHistoryError creates an insufficient-history error
func NewInsufficientHistoryError(message string, cause error) *AppError {
	return NewAppError(ErrTypeInsufficientHistory, message, cause)
}

// NewMalformedBarError creates a malformed-bar error
func NewMalformedBarError(message string, cause error) *AppError {
	return NewAppError(ErrTypeMalformedBar, message, cause)
}

// NewSourceUnavailableError creates a source-unavailable error
func NewSourceUnavailableError(message string, cause error) *AppError {
	return NewAppError(ErrTypeSourceUnavailable, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// TypeOf returns the taxonomy type of err, or "" for errors outside it.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err belongs to the given taxonomy type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// IsInsufficientHistory reports whether err is an insufficient-history error.
func IsInsufficientHistory(err error) bool {
	return IsType(err, ErrTypeInsufficientHistory)
}

// IsMalformedBar reports whether err is a malformed-bar error.
func IsMalformedBar(err error) bool {
	return IsType(err, ErrTypeMalformedBar)
}

// IsSourceUnavailable reports whether err is a source-unavailable error.
func IsSourceUnavailable(err error) bool {
	return IsType(err, ErrTypeSourceUnavailable)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return IsType(err, ErrTypeConfig)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrTypeNotFound)
}
