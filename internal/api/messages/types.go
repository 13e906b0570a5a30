// Package messages provides the wire types and HTTP client for the
// message-style inference endpoint.
package messages

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/promptpub/internal/domain"
)

// DefaultProtocolVersion is the protocol version tag sent in every request body.
const DefaultProtocolVersion = "bedrock-2023-05-31"

// MessagesRequest is the request body of a messages call.
type MessagesRequest struct {
	Model            string    `json:"model,omitempty"`
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
}

// Message is a single conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserPrompt builds a request carrying prompt as the only user message.
func UserPrompt(prompt string, maxTokens int) *MessagesRequest {
	return &MessagesRequest{
		MaxTokens: maxTokens,
		Messages:  []Message{{Role: "user", Content: prompt}},
	}
}

// ErrorResponse is an error body returned by the service.
type ErrorResponse struct {
	Type  string    `json:"type"`
	Error *APIError `json:"error"`

	// Some deployments answer with a flat {"message", "code"} body and put
	// the error class in a header instead.
	Message string `json:"message"`
	Code    string `json:"code"`
}

// APIError contains error details.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ParseErrorResponse attempts to parse an error response from JSON.
func ParseErrorResponse(data []byte) (*ErrorResponse, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	return &errResp, nil
}

// ClassifyResponse maps a non-200 response to a canonical error. The status
// code decides the class; an error type named in the body or in the
// x-amzn-ErrorType header refines it.
func ClassifyResponse(status int, header http.Header, body []byte) *domain.APIError {
	message := strings.TrimSpace(string(body))
	var errType string

	if parsed, err := ParseErrorResponse(body); err == nil {
		switch {
		case parsed.Error != nil:
			errType = parsed.Error.Type
			message = parsed.Error.Message
		case parsed.Message != "":
			errType = parsed.Code
			message = parsed.Message
		}
	}
	if errType == "" && header != nil {
		// x-amzn-ErrorType looks like "ThrottlingException:http://internal.amazon.com/..."
		errType, _, _ = strings.Cut(header.Get("x-amzn-ErrorType"), ":")
	}
	if message == "" {
		message = http.StatusText(status)
	}

	apiErr := statusError(status, message)
	if refined := typeError(errType, message); refined != nil {
		apiErr = refined
	}
	return apiErr.WithStatusCode(status)
}

func statusError(status int, message string) *domain.APIError {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimit(message)
	case status == http.StatusServiceUnavailable || status == 529:
		return domain.ErrOverloaded(message)
	case status == http.StatusInternalServerError ||
		status == http.StatusBadGateway ||
		status == http.StatusGatewayTimeout:
		return domain.NewAPIError(domain.ErrorTypeServer, message)
	case status == http.StatusUnauthorized:
		return domain.ErrAuthentication(message)
	case status == http.StatusForbidden:
		return domain.NewAPIError(domain.ErrorTypePermission, message)
	case status == http.StatusNotFound:
		return domain.NewAPIError(domain.ErrorTypeNotFound, message)
	default:
		return domain.ErrInvalidRequest(message)
	}
}

func typeError(errType, message string) *domain.APIError {
	switch errType {
	case "rate_limit_error", "ThrottlingException", "TooManyRequestsException":
		return domain.ErrRateLimit(message)
	case "overloaded_error", "ServiceUnavailableException", "ModelNotReadyException":
		return domain.ErrOverloaded(message)
	case "api_error", "InternalServerException", "ModelTimeoutException":
		return domain.NewAPIError(domain.ErrorTypeServer, message)
	case "authentication_error", "UnrecognizedClientException":
		return domain.ErrAuthentication(message)
	case "permission_error", "AccessDeniedException":
		return domain.NewAPIError(domain.ErrorTypePermission, message)
	case "invalid_request_error", "ValidationException":
		return domain.ErrInvalidRequest(message)
	}
	return nil
}
