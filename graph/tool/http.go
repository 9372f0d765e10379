package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/agentgraph-go/graph/model"
)

// DefaultMaxBodyBytes caps how much of a response body is returned to the model.
const DefaultMaxBodyBytes = 64 << 10

// HTTPTool lets an agent make HTTP requests.
//
// Input:
//   - url: Target URL (required)
//   - method: GET, POST, PUT or DELETE (defaults to GET)
//   - headers: Optional map of request headers
//   - body: Optional request body
//
// Output:
//   - status_code: HTTP status code
//   - body: Response body, truncated to MaxBodyBytes
//   - truncated: true when the body was cut
//
// Non-2xx responses are not errors; the model sees the status code and decides.
type HTTPTool struct {
	client *http.Client

	// MaxBodyBytes limits the response body returned. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// NewHTTPTool creates an HTTP tool using client, or http.DefaultClient when nil.
// Timeouts come from the call context.
func NewHTTPTool(client *http.Client) *HTTPTool {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTool{client: client}
}

// Name returns the tool identifier.
func (h *HTTPTool) Name() string {
	return "http_request"
}

// Describe implements Describer.
func (h *HTTPTool) Describe() model.ToolSpec {
	return model.ToolSpec{
		Name:        h.Name(),
		Description: "Send an HTTP request and return the status code and response body.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url":     map[string]interface{}{"type": "string", "description": "Absolute URL"},
				"method":  map[string]interface{}{"type": "string", "enum": []string{"GET", "POST", "PUT", "DELETE"}},
				"headers": map[string]interface{}{"type": "object"},
				"body":    map[string]interface{}{"type": "string"},
			},
			"required": []string{"url"},
		},
	}
}

// Call executes the request.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	var body io.Reader
	if s, ok := input["body"].(string); ok && s != "" {
		body = bytes.NewBufferString(s)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	truncated := int64(len(data)) > limit
	if truncated {
		data = data[:limit]
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        string(data),
		"truncated":   truncated,
	}, nil
}
