package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client sends one chat request and returns the completed response.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// APIError is a failure reported by the chat service with a message meant
// for the end user. Every other error returned by a Client is treated as
// opaque.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Temporary reports whether the failure is on the service side. Client
// errors (4xx) mean the service is healthy and answered.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// ToolkitOption configures a ToolkitClient.
type ToolkitOption func(*ToolkitClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ToolkitOption {
	return func(c *ToolkitClient) {
		c.http = hc
	}
}

// WithDeployment sets the Deployment-Name header sent with every request.
func WithDeployment(name string) ToolkitOption {
	return func(c *ToolkitClient) {
		c.deployment = name
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ToolkitOption {
	return func(c *ToolkitClient) {
		c.logger = logger
	}
}

// ToolkitClient talks to the toolkit backend's non-streaming chat endpoint.
type ToolkitClient struct {
	baseURL    string
	userID     string
	deployment string
	http       *http.Client
	logger     *zap.Logger
}

var _ Client = (*ToolkitClient)(nil)

// NewToolkitClient returns a client posting to {baseURL}/v1/chat on behalf
// of userID.
func NewToolkitClient(baseURL, userID string, timeout time.Duration, opts ...ToolkitOption) *ToolkitClient {
	c := &ToolkitClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat implements Client.
func (c *ToolkitClient) Chat(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.userID != "" {
		httpReq.Header.Set("User-Id", c.userID)
	}
	if c.deployment != "" {
		httpReq.Header.Set("Deployment-Name", c.deployment)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		c.logger.Debug("chat service returned an error",
			zap.Int("status", apiErr.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &out, nil
}

// decodeAPIError reads the toolkit's error body. FastAPI reports failures
// as {"detail": ...}; some proxies use {"message": ...}.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		var detail string
		if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
			apiErr.Message = detail
		} else if payload.Message != "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
