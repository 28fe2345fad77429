package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// SearchFailed indicates the session-search service call failed
	SearchFailed ErrorCode = "SEARCH_FAILED"
	// AnalysisFailed indicates the text-generation service exhausted its retries
	AnalysisFailed ErrorCode = "ANALYSIS_FAILED"
	// IndexRebuildFailed indicates the search index could not be rebuilt
	IndexRebuildFailed ErrorCode = "INDEX_REBUILD_FAILED"
	// ConfigInvalid indicates a configuration value failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// IOFailed indicates a local file could not be read or written
	IOFailed ErrorCode = "IO_FAILED"
	// NotifyFailed indicates the failure email could not be sent
	NotifyFailed ErrorCode = "NOTIFY_FAILED"
	// SyncFailed indicates the remote activity store rejected a push
	SyncFailed ErrorCode = "SYNC_FAILED"
	// Interrupted indicates the run was cancelled by a signal
	Interrupted ErrorCode = "INTERRUPTED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// fatalCodes abort a whole run. Everything else is reported per category
// or logged and skipped.
var fatalCodes = map[ErrorCode]bool{
	IndexRebuildFailed: true,
	ConfigInvalid:      true,
	Interrupted:        true,
	InternalError:      true,
}

// Error is a coded error with an optional underlying cause
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Code == code
}

// IsFatal reports whether err should abort a pipeline run. Errors without
// a code are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return fatalCodes[CodeOf(err)]
}
