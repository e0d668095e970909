// Package llmerrors classifies LLM API failures so the client boundary can
// decide what to retry.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType represents different categories of LLM errors.
type ErrorType int8

const (
	// Retryable.

	// ErrorTypeRateLimit covers 429 and quota errors.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient covers 5xx, EOF, connection reset and similar.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse is a 200 with no content and no tool calls.
	ErrorTypeEmptyResponse

	// Not retryable.

	// ErrorTypeAuth covers 401/403.
	ErrorTypeAuth
	// ErrorTypeBadPrompt covers 400-class request errors.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
	// ErrorTypeServiceUnavailable is emitted once retries are exhausted.
	ErrorTypeServiceUnavailable
	// ErrorTypeCanceled covers context cancellation and deadlines.
	ErrorTypeCanceled
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "invalid"
	}
}

// RetryConfig defines exponential backoff for one error type.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfigs holds backoff per error type. Types absent here are not retried.
//
//nolint:gochecknoglobals // package defaults
var DefaultRetryConfigs = map[ErrorType]RetryConfig{
	ErrorTypeEmptyResponse: {MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2.0},
	ErrorTypeRateLimit:     {MaxRetries: 6, InitialDelay: 1 * time.Second, MaxDelay: 60 * time.Second, BackoffFactor: 2.0},
	ErrorTypeTransient:     {MaxRetries: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2.0},
}

// Error is a classified LLM error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %s: %v", e.Type, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the boundary may retry this error.
func (e *Error) IsRetryable() bool {
	_, ok := DefaultRetryConfigs[e.Type]
	return ok
}

// RetryConfig returns the backoff configuration for this error.
func (e *Error) RetryConfig() RetryConfig {
	return DefaultRetryConfigs[e.Type]
}

// Is reports whether err is classified as errorType.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the classified type of err, classifying it first if needed.
func TypeOf(err error) ErrorType {
	return Classify(err).Type
}

// NewError creates a classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithCause creates a classified error wrapping cause.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// NewServiceUnavailableError wraps cause after attempts retries were exhausted.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

// FromStatus classifies an HTTP status code returned by a provider.
func FromStatus(statusCode int, cause error) *Error {
	var t ErrorType
	switch {
	case statusCode == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		t = ErrorTypeAuth
	case statusCode >= 500:
		t = ErrorTypeTransient
	case statusCode >= 400:
		t = ErrorTypeBadPrompt
	default:
		t = ErrorTypeUnknown
	}
	return &Error{Type: t, Err: cause, StatusCode: statusCode}
}

// Classify returns err as an *Error, inferring the type from context errors
// and message patterns when the provider did not classify it.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeCanceled, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "rate_limit", "quota"):
		return &Error{Type: ErrorTypeRateLimit, Err: err}
	case containsAny(msg, "401", "403", "unauthorized", "invalid api key", "permission denied"):
		return &Error{Type: ErrorTypeAuth, Err: err}
	case containsAny(msg, "500", "502", "503", "504", "overloaded", "timeout", "connection reset",
		"connection refused", "eof", "temporary"):
		return &Error{Type: ErrorTypeTransient, Err: err}
	case containsAny(msg, "400", "context length", "too long", "invalid_request"):
		return &Error{Type: ErrorTypeBadPrompt, Err: err}
	default:
		return &Error{Type: ErrorTypeUnknown, Err: err}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
