// internal/types.go - Common types for internal packages
package internal

import (
	"errors"
	"time"
)

// SourceType represents where raw vector data is read from
type SourceType string

const (
	SourceTypeHTTP  SourceType = "http"
	SourceTypeLocal SourceType = "local"
)

// InputFormat represents the encoding of raw vector data
type InputFormat string

const (
	InputFormatGeoJSON InputFormat = "geojson"
	InputFormatMVT     InputFormat = "mvt"
)

// ApplicationConfig represents the settings shared by fetchers and batch jobs
type ApplicationConfig struct {
	LogLevel       string
	MaxConcurrency int
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	SourceType     SourceType
}

// ProcessingStats represents metrics for processing operations
type ProcessingStats struct {
	TotalItems     int64
	ProcessedItems int64
	FailedItems    int64
	OutputFeatures int64
	StartTime      time.Time
	EndTime        time.Time
	Throughput     float64
}

// Error represents application-specific errors
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new application error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is an application error with the given code
func HasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// ErrorCode constants for common error types
const (
	ErrorCodeNetwork    = "NETWORK_ERROR"
	ErrorCodeProcessing = "PROCESSING_ERROR"
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeConfig     = "CONFIG_ERROR"
	ErrorCodeNotFound   = "NOT_FOUND"
	ErrorCodeTimeout    = "TIMEOUT_ERROR"
	ErrorCodeFileSystem = "FILESYSTEM_ERROR"
	ErrorCodePermission = "PERMISSION_ERROR"
)
