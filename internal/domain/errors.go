// Package domain holds the pipeline data model and its error taxonomy.
//
// Errors fall into four classes:
//   - validation: bad environment, malformed config, unresolved template
//     variables. Matched with errors.Is(err, ErrValidation). Never retried.
//   - transient service: rate limiting, overload, transport failure and
//     empty responses. IsRetryable reports true.
//   - permanent service: any other APIError. Fails without retry.
//   - exhaustion: InferenceExhaustedError, raised once the retry budget is
//     spent. Unwraps to the last underlying cause.
package domain

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrValidation is matched by every validation failure.
var ErrValidation = errors.New("validation failed")

// ErrEmptyResponse reports a structurally valid inference response from
// which no usable text could be extracted.
var ErrEmptyResponse = errors.New("inference response contained no usable text")

// ErrorType represents the category of a service error.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeOverloaded     ErrorType = "overloaded"
	ErrorTypeServer         ErrorType = "server"
	// ErrorTypeTransport covers failures to reach the service at all.
	ErrorTypeTransport ErrorType = "transport"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrorCodeInvalidAPIKey     ErrorCode = "invalid_api_key"
	ErrorCodeMalformedResponse ErrorCode = "malformed_response"
)

// APIError is a canonical error returned by the inference service boundary.
type APIError struct {
	Type       ErrorType `json:"type"`
	Code       ErrorCode `json:"code,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Retryable reports whether the same request may succeed after a delay.
func (e *APIError) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeOverloaded, ErrorTypeServer, ErrorTypeTransport:
		return true
	}
	return false
}

// HTTPStatusCode returns the status the error was observed with, or the
// default status for its type.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	case ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithStatusCode records the HTTP status the error arrived with.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).WithCode(ErrorCodeRateLimitExceeded)
}

// ErrOverloaded creates an overloaded error.
func ErrOverloaded(message string) *APIError {
	return NewAPIError(ErrorTypeOverloaded, message)
}

// ErrTransport creates a transport error.
func ErrTransport(message string) *APIError {
	return NewAPIError(ErrorTypeTransport, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message).WithCode(ErrorCodeInvalidAPIKey)
}

// IsRetryable reports whether err belongs to the transient class.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// UnresolvedVariableError lists placeholder tokens left in a rendered
// template. Tokens are sorted and de-duplicated.
type UnresolvedVariableError struct {
	Tokens []string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("unresolved template variables found: %s", strings.Join(e.Tokens, ", "))
}

// Is matches ErrValidation.
func (e *UnresolvedVariableError) Is(target error) bool { return target == ErrValidation }

// Names returns the bare identifiers of the unresolved tokens, sorted and
// de-duplicated.
func (e *UnresolvedVariableError) Names() []string {
	seen := make(map[string]struct{}, len(e.Tokens))
	names := make([]string, 0, len(e.Tokens))
	for _, tok := range e.Tokens {
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(tok, "{{"), "}}"))
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvalidEnvironmentError reports an explicit environment value that is
// neither beta nor prod.
type InvalidEnvironmentError struct {
	Value string
}

func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("invalid environment %q: must be beta or prod", e.Value)
}

// Is matches ErrValidation.
func (e *InvalidEnvironmentError) Is(target error) bool { return target == ErrValidation }

// ConfigError reports a malformed prompt configuration or request.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Reason
	}
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ConfigError) Is(target error) bool { return target == ErrValidation }

// InferenceExhaustedError is returned once every attempt in the retry
// budget has failed with a transient error.
type InferenceExhaustedError struct {
	Attempts int
	Last     error
}

func (e *InferenceExhaustedError) Error() string {
	return fmt.Sprintf("inference did not return a response after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last underlying cause.
func (e *InferenceExhaustedError) Unwrap() error { return e.Last }
