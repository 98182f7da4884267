package core

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error category surfaced to
// operators and recorded on failed jobs.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeDuplicateDocument  ErrorCode = "DUPLICATE_DOCUMENT"
	CodeCaseNotFound       ErrorCode = "CASE_NOT_FOUND"
	CodeDocumentNotFound   ErrorCode = "DOCUMENT_NOT_FOUND"
	CodeReportNotFound     ErrorCode = "REPORT_NOT_FOUND"
	CodeFeaturesNotBuilt   ErrorCode = "FEATURES_NOT_BUILT"
	CodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeExternalTimeout    ErrorCode = "EXTERNAL_TIMEOUT"
	CodeExternalFailure    ErrorCode = "EXTERNAL_FAILURE"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Error carries a taxonomy code alongside the message so stage handlers
// and the HTTP layer can translate failures without string matching.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// NewError builds a taxonomy error.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a taxonomy code to an underlying error.
func WrapError(code ErrorCode, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// WithDetails attaches structured details (returned in the HTTP envelope).
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the taxonomy code from err, defaulting to INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// Retryable reports whether a job failing with err should be retried.
// Validation, precondition, and permanent external failures are final.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeDuplicateDocument, CodeCaseNotFound,
		CodeDocumentNotFound, CodePreconditionFailed, CodeExternalFailure:
		return false
	}
	return true
}
