package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeStorage      = "STORAGE_FAILURE"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"

	// Capture and fetch error codes for /api/v1/capture and /api/v1/locators.
	ErrCodeTimeout       = "CAPTURE_TIMEOUT"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeCaptureFailed = "CAPTURE_FAILED"
	ErrCodeFetchFailed   = "FETCH_FAILED"
	ErrCodeActionFailed  = "ACTION_FAILED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IngestError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type IngestError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// NewIngestError creates a new IngestError.
func NewIngestError(code, message string, err error) *IngestError {
	return &IngestError{Code: code, Message: message, Err: err}
}

// InvalidInput is shorthand for a client-side input error.
func InvalidInput(format string, args ...any) *IngestError {
	return &IngestError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether the error was caused by the caller's input.
func (e *IngestError) IsClientError() bool {
	return e.Code == ErrCodeInvalidInput || e.Code == ErrCodeNotFound
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *IngestError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
