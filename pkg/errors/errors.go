package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures in the crawl pipeline
type ErrorType string

const (
	ErrorTypeTransientNetwork ErrorType = "transient_network"
	ErrorTypeRateLimited      ErrorType = "rate_limited"
	ErrorTypeCaptcha          ErrorType = "captcha_detected"
	ErrorTypeFatalRequest     ErrorType = "fatal_request"
	ErrorTypeDataIntegrity    ErrorType = "data_integrity"
	ErrorTypeStorage          ErrorType = "storage"
	ErrorTypeUnknown          ErrorType = "unknown"
)

// Error represents a crawl error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error wrapping an underlying cause
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// NewNetwork creates a transient network error
func NewNetwork(message string, err error) *Error {
	return &Error{Type: ErrorTypeTransientNetwork, Message: message, Err: err}
}

// NewRateLimited creates a rate limit error for the given status code
func NewRateLimited(message string, code int) *Error {
	return &Error{Type: ErrorTypeRateLimited, Message: message, Code: code}
}

// NewFatalRequest creates a non-retryable request error
func NewFatalRequest(message string, code int) *Error {
	return &Error{Type: ErrorTypeFatalRequest, Message: message, Code: code}
}

// NewStorage wraps a persistence failure. Storage errors always propagate
// so that resumable state is never silently left inconsistent.
func NewStorage(message string, err error) *Error {
	return &Error{Type: ErrorTypeStorage, Message: message, Err: err}
}

// RetryStrategyGlobalCoolingOff is the strategy suggested when a CAPTCHA
// challenge is detected.
const RetryStrategyGlobalCoolingOff = "global_cooling_off"

// CaptchaError signals a CAPTCHA challenge. It is never retried at the
// client level; callers own the wait-and-resume policy.
type CaptchaError struct {
	Endpoint      string
	RetryStrategy string
	Reason        string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("%s error on %s: %s", ErrorTypeCaptcha, e.Endpoint, e.Reason)
}

// NewCaptcha creates a CAPTCHA error suggesting the global cooling-off
// strategy.
func NewCaptcha(endpoint, reason string) *CaptchaError {
	return &CaptchaError{
		Endpoint:      endpoint,
		RetryStrategy: RetryStrategyGlobalCoolingOff,
		Reason:        reason,
	}
}

// IsCaptcha reports whether err is (or wraps) a CAPTCHA error
func IsCaptcha(err error) bool {
	var ce *CaptchaError
	return errors.As(err, &ce)
}

// AsCaptcha extracts a CAPTCHA error if err is one
func AsCaptcha(err error) (*CaptchaError, bool) {
	var ce *CaptchaError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// TypeOf returns the error type of err, or ErrorTypeUnknown for untyped
// errors. CAPTCHA errors report their own type.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var ce *CaptchaError
	if errors.As(err, &ce) {
		return ErrorTypeCaptcha
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransientNetwork, ErrorTypeRateLimited:
		return true
	case ErrorTypeCaptcha, ErrorTypeFatalRequest, ErrorTypeDataIntegrity, ErrorTypeStorage:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	case 400, 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
