package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plandesk/plandesk/internal/apiclient"
	"github.com/plandesk/plandesk/internal/cache"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/plandesk/plandesk/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

type unauthorizedCounter struct {
	calls int
}

func (u *unauthorizedCounter) OnUnauthorized(context.Context) {
	u.calls++
}

type task struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

func setup(t *testing.T, token string) (*testhelpers.MockAPIServer, *apiclient.Client, *cache.Cache, *unauthorizedCounter) {
	t.Helper()

	api := testhelpers.SetupMockAPIServer(t)
	responses := cache.New(store.NewMemory())
	guard := &unauthorizedCounter{}

	client := apiclient.New(
		cache.NewKeys(api.URL(), "/api"),
		staticToken(token),
		apiclient.WithResponseCache(responses),
		apiclient.WithUnauthorizedHandler(guard),
	)

	return api, client, responses, guard
}

func TestGet_AttachesBearerToken(t *testing.T) {
	api, client, _, _ := setup(t, "secret-token")
	api.Handle(http.MethodGet, "/api/tasks", testhelpers.MockResponse{Body: []map[string]any{{"id": 1, "name": "A"}}})

	result := apiclient.Get[[]task](context.Background(), client, "/tasks")

	require.Nil(t, result.Error)
	assert.Equal(t, http.StatusOK, result.Status)
	require.NotNil(t, result.Data)
	assert.Equal(t, []task{{ID: "1", Name: "A"}}, *result.Data)
	assert.Equal(t, "Bearer secret-token", api.LastAuthHeader())
}

func TestGet_WithoutTokenSendsNoAuthorization(t *testing.T) {
	api, client, _, _ := setup(t, "")
	api.Handle(http.MethodGet, "/api/users/me", testhelpers.MockResponse{Body: map[string]any{"id": 1}})

	result := apiclient.Get[map[string]any](context.Background(), client, "/users/me")

	require.Nil(t, result.Error)
	assert.Empty(t, api.LastAuthHeader())
}

func TestGet_WithCacheMergesResponse(t *testing.T) {
	ctx := context.Background()
	api, client, responses, _ := setup(t, "token")
	key := client.Keys().Key("/tasks")

	_, err := responses.Merge(ctx, map[string]any{key: []any{
		map[string]any{"id": json.Number("1"), "name": "A"},
		map[string]any{"id": json.Number("2"), "name": "B"},
	}})
	require.NoError(t, err)

	api.Handle(http.MethodGet, "/api/tasks", testhelpers.MockResponse{Body: []map[string]any{
		{"id": 2, "name": "B2"},
		{"id": 3, "name": "C"},
	}})

	result := apiclient.Get[[]task](ctx, client, "/tasks", apiclient.WithCache())
	require.Nil(t, result.Error)

	cached, ok, err := responses.List(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{
		map[string]any{"id": json.Number("1"), "name": "A"},
		map[string]any{"id": json.Number("2"), "name": "B2"},
		map[string]any{"id": json.Number("3"), "name": "C"},
	}, cached)
}

func TestGet_WithoutCacheOptionLeavesCache(t *testing.T) {
	ctx := context.Background()
	api, client, responses, _ := setup(t, "token")
	api.Handle(http.MethodGet, "/api/tasks", testhelpers.MockResponse{Body: []map[string]any{{"id": 1}}})

	result := apiclient.Get[[]task](ctx, client, "/tasks")
	require.Nil(t, result.Error)

	snapshot, err := responses.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestGet_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	api, client, responses, _ := setup(t, "token")
	api.Handle(http.MethodGet, "/api/tasks", testhelpers.MockResponse{
		Status: http.StatusInternalServerError,
		Body:   map[string]any{"message": "boom"},
	})

	result := apiclient.Get[[]task](ctx, client, "/tasks", apiclient.WithCache())

	require.NotNil(t, result.Error)
	assert.Nil(t, result.Data)
	snapshot, err := responses.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestPost_NeverCaches(t *testing.T) {
	ctx := context.Background()
	api, client, responses, _ := setup(t, "token")
	api.Handle(http.MethodPost, "/api/tasks", testhelpers.MockResponse{
		Status: http.StatusCreated,
		Body:   map[string]any{"id": 9, "name": "new"},
	})

	result := apiclient.Post[task](ctx, client, "/tasks", map[string]any{"name": "new"})

	require.Nil(t, result.Error)
	assert.Equal(t, http.StatusCreated, result.Status)
	assert.Equal(t, task{ID: "9", Name: "new"}, *result.Data)
	assert.JSONEq(t, `{"name":"new"}`, string(api.LastBody()))

	snapshot, err := responses.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestPut_SendsBody(t *testing.T) {
	api, client, _, _ := setup(t, "token")
	api.Handle(http.MethodPut, "/api/tasks/4", testhelpers.MockResponse{Body: map[string]any{"id": 4, "name": "renamed"}})

	result := apiclient.Put[task](context.Background(), client, "/tasks/4", map[string]any{"name": "renamed"})

	require.Nil(t, result.Error)
	assert.Equal(t, "renamed", result.Data.Name)
	assert.Equal(t, 1, api.RequestCount(http.MethodPut, "/api/tasks/4"))
}

func TestDelete_PropagatesThroughCache(t *testing.T) {
	ctx := context.Background()
	api, client, responses, _ := setup(t, "token")
	tasksKey := client.Keys().Key("/tasks")
	taskKey := client.Keys().Key("/tasks", "7")

	_, err := responses.Merge(ctx, map[string]any{
		tasksKey: []any{
			map[string]any{"id": json.Number("7"), "name": "gone"},
			map[string]any{"id": json.Number("8"), "name": "kept"},
		},
		taskKey: map[string]any{"id": "7", "name": "gone"},
	})
	require.NoError(t, err)

	api.Handle(http.MethodDelete, "/api/tasks/7", testhelpers.MockResponse{Status: http.StatusNoContent})

	result := apiclient.Delete[struct{}](ctx, client, "/tasks", "7")

	require.Nil(t, result.Error)
	assert.Equal(t, http.StatusNoContent, result.Status)
	assert.Nil(t, result.Data)

	snapshot, err := responses.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		tasksKey: []any{map[string]any{"id": json.Number("8"), "name": "kept"}},
	}, snapshot)
}

func TestDelete_FailureLeavesCache(t *testing.T) {
	ctx := context.Background()
	api, client, responses, _ := setup(t, "token")
	taskKey := client.Keys().Key("/tasks", "7")

	_, err := responses.Merge(ctx, map[string]any{taskKey: map[string]any{"id": "7"}})
	require.NoError(t, err)

	api.Handle(http.MethodDelete, "/api/tasks/7", testhelpers.MockResponse{
		Status: http.StatusForbidden,
		Body:   map[string]any{"message": "not yours"},
	})

	result := apiclient.Delete[struct{}](ctx, client, "/tasks", "7")

	require.NotNil(t, result.Error)
	_, ok, err := responses.Entity(ctx, taskKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServerError_JoinsMessages(t *testing.T) {
	api, client, _, _ := setup(t, "token")
	api.Handle(http.MethodPost, "/api/projects", testhelpers.MockResponse{
		Status: http.StatusBadRequest,
		Body: map[string]any{
			"message":    []string{"name should not be empty", "name must be a string"},
			"error":      "Bad Request",
			"statusCode": 400,
		},
	})

	result := apiclient.Post[map[string]any](context.Background(), client, "/projects", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, apiclient.KindServer, result.Error.Kind)
	assert.Equal(t, "request failed with status code 400: name should not be empty, name must be a string", result.Error.Message)
	assert.Equal(t, "ERR_BAD_REQUEST", result.Error.Code)
	assert.Equal(t, map[string]any{
		"message":    []any{"name should not be empty", "name must be a string"},
		"error":      "Bad Request",
		"statusCode": json.Number("400"),
	}, result.Error.Details)
}

func TestServerError_Variants(t *testing.T) {
	tests := []struct {
		name            string
		response        testhelpers.MockResponse
		expectedMessage string
		expectedCode    string
		expectedDetails any
	}{
		{
			name:            "server code wins",
			response:        testhelpers.MockResponse{Status: http.StatusConflict, Body: map[string]any{"message": "exists", "code": "DUPLICATE"}},
			expectedMessage: "request failed with status code 409: exists",
			expectedCode:    "DUPLICATE",
			expectedDetails: map[string]any{"message": "exists", "code": "DUPLICATE"},
		},
		{
			name:            "plain text body",
			response:        testhelpers.MockResponse{Status: http.StatusBadGateway, Body: "upstream down\n"},
			expectedMessage: "request failed with status code 502",
			expectedCode:    "ERR_BAD_RESPONSE",
			expectedDetails: "upstream down",
		},
		{
			name:            "empty body",
			response:        testhelpers.MockResponse{Status: http.StatusServiceUnavailable},
			expectedMessage: "request failed with status code 503",
			expectedCode:    "ERR_BAD_RESPONSE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, client, _, _ := setup(t, "token")
			api.Handle(http.MethodGet, "/api/projects", tt.response)

			result := apiclient.Get[[]any](context.Background(), client, "/projects")

			require.NotNil(t, result.Error)
			assert.Equal(t, tt.expectedMessage, result.Error.Message)
			assert.Equal(t, tt.expectedCode, result.Error.Code)
			assert.Equal(t, tt.expectedDetails, result.Error.Details)
		})
	}
}

func TestUnauthorized_InvokesHandler(t *testing.T) {
	api, client, _, guard := setup(t, "expired")
	api.Handle(http.MethodGet, "/api/projects", testhelpers.MockResponse{
		Status: http.StatusUnauthorized,
		Body:   map[string]any{"message": "Unauthorized", "statusCode": 401},
	})

	result := apiclient.Get[[]any](context.Background(), client, "/projects", apiclient.WithCache())

	assert.Equal(t, http.StatusUnauthorized, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, apiclient.KindAuth, result.Error.Kind)
	assert.Equal(t, 1, guard.calls)
}

func TestNetworkError_NoResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := apiclient.New(cache.NewKeys(baseURL, "/api"), staticToken("token"))

	result := apiclient.Get[[]any](context.Background(), client, "/projects")

	assert.Equal(t, 0, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, apiclient.KindNetwork, result.Error.Kind)
	assert.Equal(t, "no response received from server", result.Error.Message)
	assert.Equal(t, "ERR_NETWORK", result.Error.Code)
}

func TestNetworkError_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := apiclient.New(
		cache.NewKeys(server.URL, "/api"),
		staticToken(""),
		apiclient.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)

	result := apiclient.Get[[]any](context.Background(), client, "/projects")

	assert.Equal(t, 0, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, apiclient.KindNetwork, result.Error.Kind)
	assert.Equal(t, "ETIMEDOUT", result.Error.Code)
}

func TestSetupError_InvalidBody(t *testing.T) {
	api, client, _, _ := setup(t, "token")

	result := apiclient.Post[map[string]any](context.Background(), client, "/projects", map[string]any{"bad": make(chan int)})

	assert.Equal(t, 0, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, apiclient.KindSetup, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "unsupported type")
	assert.Equal(t, 0, api.RequestCount(http.MethodPost, "/api/projects"))
}

func TestSetupError_InvalidURL(t *testing.T) {
	client := apiclient.New(cache.NewKeys("http://bad host", ""), staticToken(""))

	result := apiclient.Get[[]any](context.Background(), client, "/projects")

	assert.Equal(t, 0, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, apiclient.KindSetup, result.Error.Kind)
	assert.NotEmpty(t, result.Error.Message)
}
