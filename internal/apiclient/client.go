// Package apiclient performs calls against the remote API. Calls never fail
// with a Go error: every outcome is a Result, with transport, setup and
// server failures normalised into the same Error shape.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/plandesk/plandesk/internal/cache"
	"github.com/rs/zerolog/log"
)

// maxResponseBytes bounds the body read from a single response.
const maxResponseBytes = 32 << 20 // 32 MB

// TokenSource supplies the bearer token attached to outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// UnauthorizedHandler is invoked when the API rejects the credentials.
type UnauthorizedHandler interface {
	OnUnauthorized(ctx context.Context)
}

// ResponseCache receives successful responses and confirmed deletions.
type ResponseCache interface {
	MergeResponse(ctx context.Context, key string, body []byte) error
	DeleteEntity(ctx context.Context, id string) ([]string, error)
}

type Client struct {
	keys         cache.Keys
	httpClient   *http.Client
	tokens       TokenSource
	cache        ResponseCache
	unauthorized UnauthorizedHandler
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithResponseCache enables cached GETs and deletion propagation.
func WithResponseCache(rc ResponseCache) ClientOption {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithUnauthorizedHandler sets the handler run on every 401 response.
func WithUnauthorizedHandler(h UnauthorizedHandler) ClientOption {
	return func(c *Client) {
		c.unauthorized = h
	}
}

// New creates a client issuing requests to the endpoints described by keys.
func New(keys cache.Keys, tokens TokenSource, options ...ClientOption) *Client {
	c := &Client{
		keys:       keys,
		httpClient: http.DefaultClient,
		tokens:     tokens,
	}

	for _, o := range options {
		o(c)
	}

	return c
}

// Keys returns the endpoint key builder used by the client.
func (c *Client) Keys() cache.Keys {
	return c.keys
}

// Result is the outcome of a call. Status is 0 when no response was
// received. Data is nil when the call failed or the body was empty.
type Result[T any] struct {
	Status int    `json:"status"`
	Data   *T     `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Failed reports the error, if any.
func (r Result[T]) Failed() (*Error, bool) {
	return r.Error, r.Error != nil
}

type requestOptions struct {
	cache bool
}

// Option adjusts a single call.
type Option func(*requestOptions)

// WithCache merges a successful GET response into the response cache under
// the endpoint key.
func WithCache() Option {
	return func(o *requestOptions) {
		o.cache = true
	}
}

func collect(opts []Option) requestOptions {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// response is the raw outcome of a round trip.
type response struct {
	key    string
	status int
	body   []byte
	err    *Error
}

func (r response) success() bool {
	return r.err == nil && r.status >= 200 && r.status < 300
}

func (c *Client) do(ctx context.Context, method, key string, payload any) response {
	res := response{key: key}
	start := time.Now()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			res.err = setupError(err)
			return res
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, key, body)
	if err != nil {
		res.err = setupError(err)
		return res
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.tokens.Token(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.err = networkError(err)
		c.logResult(ctx, method, res, start)
		return res
	}
	defer resp.Body.Close()

	res.status = resp.StatusCode
	res.body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		// the status arrived but the body did not
		res.status = 0
		res.err = networkError(err)
		c.logResult(ctx, method, res, start)
		return res
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.err = serverError(resp.StatusCode, res.body)
	}

	c.logResult(ctx, method, res, start)

	if resp.StatusCode == http.StatusUnauthorized && c.unauthorized != nil {
		c.unauthorized.OnUnauthorized(ctx)
	}

	return res
}

func (c *Client) logResult(ctx context.Context, method string, res response, start time.Time) {
	l := log.Ctx(ctx)

	ev := l.Debug()
	if res.err != nil {
		ev = l.Info().Str("error_kind", res.err.Kind.String()).Str("error", res.err.Message)
	}

	ev.Str("method", method).
		Str("url", res.key).
		Int("status", res.status).
		Dur("duration", time.Since(start)).
		Msg("api: request complete")
}
