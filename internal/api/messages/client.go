package messages

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/domain"
)

const defaultBaseURL = "https://api.anthropic.com"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the key sent in the x-api-key header.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithVersion sets the protocol version tag placed in request bodies.
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		if version != "" {
			c.version = version
		}
	}
}

// WithModel sets the model identifier placed in request bodies.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// Client is an HTTP client for the messages endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	version    string
	model      string
	httpClient *http.Client
}

// NewClient creates a new messages client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		version:    DefaultProtocolVersion,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateMessage sends a messages request and returns the raw JSON payload of
// a 200 response. Failures are returned as *domain.APIError so callers can
// tell transient errors from permanent ones; context cancellation is
// returned as the context's error.
func (c *Client) CreateMessage(ctx context.Context, req *MessagesRequest) (json.RawMessage, error) {
	body := *req
	if body.AnthropicVersion == "" {
		body.AnthropicVersion = c.version
	}
	if body.Model == "" {
		body.Model = c.model
	}

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.ErrInvalidRequest(err.Error())
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.ErrTransport(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.ErrTransport("read response: " + err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyResponse(resp.StatusCode, resp.Header, respBody)
	}

	if !json.Valid(respBody) {
		return nil, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "response body is not valid JSON").
			WithCode(domain.ErrorCodeMalformedResponse).
			WithStatusCode(resp.StatusCode)
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "promptpub/1.0")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
