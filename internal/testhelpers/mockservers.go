package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockResponse is the canned reply for one route of the mock API.
type MockResponse struct {
	Status int // HTTP status code to return (200 if not set)
	Body   any // Marshalled to JSON; a string is written verbatim
}

// MockAPIServer provides a configurable mock of the remote project/task API.
// Routes are keyed by "METHOD /path", matched against the request path
// without its query string.
type MockAPIServer struct {
	Server *httptest.Server

	mu             sync.Mutex
	routes         map[string]MockResponse
	requests       map[string]int
	lastAuthHeader string
	lastBody       []byte
}

// SetupMockAPIServer starts a mock API server. Unknown routes return 404.
func SetupMockAPIServer(t *testing.T) *MockAPIServer {
	t.Helper()

	mock := &MockAPIServer{
		routes:   map[string]MockResponse{},
		requests: map[string]int{},
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(mock.serve))
	t.Cleanup(mock.Close)

	return mock
}

// Handle registers the reply for method and path.
func (m *MockAPIServer) Handle(method, path string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[method+" "+path] = response
}

// RequestCount returns how many requests reached method and path.
func (m *MockAPIServer) RequestCount(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[method+" "+path]
}

// LastAuthHeader returns the Authorization header of the most recent request.
func (m *MockAPIServer) LastAuthHeader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuthHeader
}

// LastBody returns the body of the most recent request.
func (m *MockAPIServer) LastBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

// URL returns the base URL of the server.
func (m *MockAPIServer) URL() string {
	return m.Server.URL
}

// Close shuts down the mock server.
func (m *MockAPIServer) Close() {
	m.Server.Close()
}

func (m *MockAPIServer) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	var body []byte
	if r.Body != nil {
		body, _ = readAll(r)
	}

	m.mu.Lock()
	m.requests[route]++
	m.lastAuthHeader = r.Header.Get("Authorization")
	m.lastBody = body
	response, ok := m.routes[route]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		WriteJSON(w, map[string]any{"message": "not found", "statusCode": http.StatusNotFound})
		return
	}

	status := response.Status
	if status == 0 {
		status = http.StatusOK
	}

	if text, isText := response.Body.(string); isText {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(text))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if response.Body != nil {
		WriteJSON(w, response.Body)
	}
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
