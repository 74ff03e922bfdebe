package testutil

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gepvi/gepvi-users/internal/httpclient"
)

var _ httpclient.Client = (*MockHTTPClient)(nil)

// MockHTTPClient implements a mock HTTP client for testing. It answers
// like httpclient.DefaultClient: non-2xx statuses come back as errors.
type MockHTTPClient struct {
	mu       sync.RWMutex
	routes   map[string]MockResponse
	requests []*httpclient.Request
}

// MockResponse represents a mock HTTP response. Err simulates a transport
// failure.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Err        error
}

// NewMockHTTPClient creates a new mock HTTP client
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		routes: make(map[string]MockResponse),
	}
}

// RegisterResponse registers a response for requests whose method matches
// and whose url ends with path
func (m *MockHTTPClient) RegisterResponse(method, path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[method+" "+path] = resp
}

// RegisterJSONResponse is a helper to register a 200 JSON response
func (m *MockHTTPClient) RegisterJSONResponse(method, path, body string) {
	m.RegisterResponse(method, path, MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

// Send implements the httpclient.Client interface
func (m *MockHTTPClient) Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matched *MockResponse
	for route, resp := range m.routes {
		method, path, _ := strings.Cut(route, " ")
		if method == req.Method && strings.HasSuffix(req.URL, path) {
			resp := resp
			matched = &resp
			break
		}
	}

	if matched == nil {
		return nil, httpclient.NewError(http.StatusNotFound, []byte("Not Found"))
	}
	if matched.Err != nil {
		return nil, matched.Err
	}
	if matched.StatusCode >= http.StatusBadRequest {
		return nil, httpclient.NewError(matched.StatusCode, matched.Body)
	}

	return &httpclient.Response{
		StatusCode: matched.StatusCode,
		Body:       matched.Body,
		Headers:    matched.Headers,
	}, nil
}

// Requests returns the requests sent so far
func (m *MockHTTPClient) Requests() []*httpclient.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*httpclient.Request, len(m.requests))
	copy(result, m.requests)
	return result
}

// Clear removes all registered responses
func (m *MockHTTPClient) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make(map[string]MockResponse)
	m.requests = nil
}
