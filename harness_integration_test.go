//go:build integration

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/plandesk/plandesk/internal/config"
	"github.com/plandesk/plandesk/internal/folders"
	"github.com/plandesk/plandesk/internal/server"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/plandesk/plandesk/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// ChannelTestHarness runs the channel routes against a mock API and a real
// store backend.
type ChannelTestHarness struct {
	t       *testing.T
	Server  *httptest.Server
	API     *testhelpers.MockAPIServer
	Store   store.Store
	BaseURL string
}

// ChannelTestHarnessOption configures the harness.
type ChannelTestHarnessOption func(*config.Config)

// WithValkeyStore runs the store in a Valkey container.
func WithValkeyStore() ChannelTestHarnessOption {
	return func(cfg *config.Config) {
		cfg.Store.Type = "valkey"
	}
}

// WithFolderIndex decorates projects and tasks from the index file at path.
func WithFolderIndex(path string) ChannelTestHarnessOption {
	return func(cfg *config.Config) {
		cfg.Folders.IndexPath = path
	}
}

// NewChannelTestHarness creates the mock API, the store and the channel
// server. Cleanup is handled automatically via t.Cleanup().
func NewChannelTestHarness(t *testing.T, options ...ChannelTestHarnessOption) *ChannelTestHarness {
	t.Helper()
	testhelpers.SetupLogger(t)
	hooks := &server.ShutdownHooks{}

	t.Cleanup(func() {
		_ = hooks.Execute(t.Context())
	})

	api := testhelpers.SetupMockAPIServer(t)

	cfg := config.Config{
		API: config.APIConfig{
			BaseURL:        api.URL(),
			Prefix:         "/api",
			TimeoutSeconds: 5,
		},
		Store: config.StoreConfig{
			Type: "memory", // Default to memory store for tests
		},
		Observe: config.ObserveConfig{
			Enabled: false,
		},
	}

	for _, opt := range options {
		opt(&cfg)
	}

	if cfg.Store.Type == "valkey" {
		cfg.Store = testhelpers.RunValkeyContainer(t)
	}

	s, err := store.NewFromConfig(cfg.Store)
	require.NoError(t, err)
	hooks.AddCloser("store", s)

	index, err := folders.Load(cfg.Folders.IndexPath)
	require.NoError(t, err)

	httpClient := &http.Client{Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second}
	handler := configureServerRoutes(newServices(cfg, s, httpClient, index))

	srv := httptest.NewServer(handler)
	hooks.AddContext("channel", func(_ context.Context) error {
		srv.Close()
		return nil
	})

	return &ChannelTestHarness{
		t:       t,
		Server:  srv,
		API:     api,
		Store:   s,
		BaseURL: cfg.API.BaseURL + "/api",
	}
}

// Client returns a client for the channel routes.
func (h *ChannelTestHarness) Client() *TestClient {
	return &TestClient{
		baseURL: h.Server.URL,
		client:  h.Server.Client(),
	}
}

// TestClient provides typed access to the channel routes.
type TestClient struct {
	baseURL string
	client  *http.Client
}

// Response wraps raw HTTP response for low-level assertions.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Request performs a low-level HTTP request and returns the raw response.
func (c *TestClient) Request(method, path string, body io.Reader) (*Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

// Channel requests a resource and returns the value of every NDJSON reply.
func (c *TestClient) Channel(resource string, filter url.Values) ([]any, error) {
	path := "/channel/" + resource
	if len(filter) > 0 {
		path += "?" + filter.Encode()
	}

	resp, err := c.Request(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel %s: status %d: %s", resource, resp.StatusCode, resp.Body)
	}

	var values []any
	scanner := bufio.NewScanner(bytes.NewReader(resp.Body))
	for scanner.Scan() {
		var reply map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &reply); err != nil {
			return nil, fmt.Errorf("unmarshal reply: %w", err)
		}
		values = append(values, reply[resource])
	}

	return values, scanner.Err()
}

// Delete deletes an entity through the channel.
func (c *TestClient) Delete(resource, id string) (bool, error) {
	resp, err := c.Request(http.MethodDelete, "/channel/"+resource+"/"+url.PathEscape(id), nil)
	if err != nil {
		return false, err
	}

	var body DeleteResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return body.Deleted, nil
}

// Login signs in through the channel.
func (c *TestClient) Login(email, password string) (int, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return 0, err
	}

	resp, err := c.Request(http.MethodPost, "/session", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
