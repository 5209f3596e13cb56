// Error types and handling
package llm

import (
	"fmt"
	"time"
)

// ErrorType is the closed set of error categories produced at the transport
// boundary. Every provider adapter maps vendor SDK failures onto one of these
// tags; retry decisions are made from the tag, never from concrete error types.
type ErrorType string

const (
	// ErrorTypeNetwork covers connection failures before a response is read.
	ErrorTypeNetwork ErrorType = "network_error"
	// ErrorTypeTimeout covers deadline and cancellation failures.
	ErrorTypeTimeout ErrorType = "timeout_error"
	// ErrorTypeRateLimit covers HTTP 429 and vendor throttling responses.
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeServer covers 5xx responses.
	ErrorTypeServer ErrorType = "server_error"
	// ErrorTypeClient covers 4xx responses other than 429 and 401/403.
	ErrorTypeClient ErrorType = "client_error"
	// ErrorTypeAuth covers 401/403 and credential problems.
	ErrorTypeAuth ErrorType = "authentication_error"
	// ErrorTypeSerialization covers malformed request or response bodies.
	ErrorTypeSerialization ErrorType = "serialization_error"
	// ErrorTypeStream covers transport failures in the middle of a stream.
	ErrorTypeStream ErrorType = "stream_error"
	// ErrorTypeValidation covers locally rejected configuration or requests.
	ErrorTypeValidation ErrorType = "validation_error"
)

// Error represents a standardized LLM error
type Error struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Type       ErrorType `json:"type"`
	StatusCode int       `json:"status_code,omitempty"`

	// RetryAfter is the provider-suggested wait before retrying, when the
	// provider sent one (rate limit responses). Zero means no suggestion.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Attempts and Endpoint are filled in by the resilient client before the
	// error reaches the caller.
	Attempts int    `json:"attempts,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	Cause error `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s (endpoint %s)", msg, e.Endpoint)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches errors by type tag so callers can use errors.Is with a
// prototypical &Error{Type: ...}.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Retryable reports whether the error is worth retrying: network, timeout,
// rate limit and 5xx are transient; everything else is fatal for the call.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServer:
		return true
	default:
		return false
	}
}

// RetryAfterHint returns the provider-suggested wait, zero when absent.
// The retry executor picks this up through its default classifier.
func (e *Error) RetryAfterHint() time.Duration {
	if e == nil {
		return 0
	}
	return e.RetryAfter
}

// ClassifyStatusCode maps an HTTP status code to an ErrorType. Used by the
// provider adapters when the vendor SDK exposes only the status code.
func ClassifyStatusCode(status int) ErrorType {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status == 401 || status == 403:
		return ErrorTypeAuth
	case status >= 500:
		return ErrorTypeServer
	case status >= 400:
		return ErrorTypeClient
	default:
		return ErrorTypeNetwork
	}
}

// NewRateLimitError builds a rate limit error with an optional provider
// suggested wait.
func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	return &Error{
		Code:       "rate_limited",
		Message:    message,
		Type:       ErrorTypeRateLimit,
		StatusCode: 429,
		RetryAfter: retryAfter,
	}
}

// NewStreamError wraps a mid-stream transport failure.
func NewStreamError(cause error) *Error {
	return &Error{
		Code:    "stream_interrupted",
		Message: fmt.Sprintf("stream interrupted: %v", cause),
		Type:    ErrorTypeStream,
		Cause:   cause,
	}
}

// NewSerializationError wraps a malformed payload failure.
func NewSerializationError(message string, cause error) *Error {
	return &Error{
		Code:    "malformed_payload",
		Message: message,
		Type:    ErrorTypeSerialization,
		Cause:   cause,
	}
}
