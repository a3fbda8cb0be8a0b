package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the redaction worker
 *
 * Page-level stages never raise past their own boundary: they tag the page
 * result and keep the ProcessingError as the page message. Document-level
 * callers (queue, CLI) receive ProcessingError values directly.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Stage errors
	ErrorUpstreamFailure   ErrorCode = "UPSTREAM_FAILURE"
	ErrorGeometryMiss      ErrorCode = "GEOMETRY_MISS"
	ErrorIOFailure         ErrorCode = "IO_FAILURE"
	ErrorAssemblyFailure   ErrorCode = "ASSEMBLY_FAILURE"
	ErrorTextRedaction     ErrorCode = "TEXT_REDACTION_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Storage errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code       ErrorCode
	Message    string
	DocumentID string
	PageNum    int
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first ProcessingError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Factory functions for common errors

func NewUpstreamFailureError(documentID string, pageNum int, stage string, message string) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorUpstreamFailure,
		Message:    fmt.Sprintf("%s stage reported failure: %s", stage, message),
		DocumentID: documentID,
		PageNum:    pageNum,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"stage":            stage,
			"upstream_message": message,
		},
	}
}

func NewGeometryMissError(documentID string, pageNum int, entityType string, start, end int) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorGeometryMiss,
		Message:    fmt.Sprintf("No words overlap %s span [%d:%d)", entityType, start, end),
		DocumentID: documentID,
		PageNum:    pageNum,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"entity_type": entityType,
			"start":       start,
			"end":         end,
		},
	}
}

func NewIOFailureError(documentID string, pageNum int, path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorIOFailure,
		Message:    fmt.Sprintf("Page source unreadable: %s", path),
		DocumentID: documentID,
		PageNum:    pageNum,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewAssemblyFailureError(documentID string, reason string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorAssemblyFailure,
		Message:    fmt.Sprintf("Document assembly failed: %s", reason),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewTextRedactionError(documentID string, pageNum int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorTextRedaction,
		Message:    "Text redaction failed, original text kept",
		DocumentID: documentID,
		PageNum:    pageNum,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewProcessingTimeoutError(documentID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorProcessingTimeout,
		Message:    fmt.Sprintf("Processing timed out after %v", duration),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(documentID string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorUnsupportedFormat,
		Message:    fmt.Sprintf("Unsupported file format: %s", mimeType),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewStorageFailedError(documentID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorStorageFailed,
		Message:    "Failed to store processing results",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewDatabaseFailedError(documentID string, operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorDatabaseFailed,
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.DocumentID != "" {
		result["document_id"] = e.DocumentID
	}
	if e.PageNum > 0 {
		result["page_num"] = e.PageNum
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
