package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Get fetches endpoint. With WithCache, a 2xx body is merged into the
// response cache before returning.
func Get[T any](ctx context.Context, c *Client, endpoint string, opts ...Option) Result[T] {
	o := collect(opts)
	res := c.do(ctx, http.MethodGet, c.keys.Key(endpoint), nil)

	if o.cache && res.success() && c.cache != nil {
		if err := c.cache.MergeResponse(ctx, res.key, res.body); err != nil {
			// the caller still gets fresh data; only the cache missed the update
			log.Ctx(ctx).Warn().Err(err).Str("url", res.key).Msg("api: caching response failed")
		}
	}

	return decode[T](res)
}

// Post sends body as JSON to endpoint. Responses are never cached.
func Post[T any](ctx context.Context, c *Client, endpoint string, body any) Result[T] {
	return decode[T](c.do(ctx, http.MethodPost, c.keys.Key(endpoint), body))
}

// Put sends body as JSON to endpoint. Responses are never cached.
func Put[T any](ctx context.Context, c *Client, endpoint string, body any) Result[T] {
	return decode[T](c.do(ctx, http.MethodPut, c.keys.Key(endpoint), body))
}

// Delete removes the entity entityID below endpoint. On a 2xx response every
// cached reference to the entity is removed before returning.
func Delete[T any](ctx context.Context, c *Client, endpoint string, entityID string) Result[T] {
	res := c.do(ctx, http.MethodDelete, c.keys.Key(endpoint, entityID), nil)

	if res.success() && c.cache != nil {
		if _, err := c.cache.DeleteEntity(ctx, entityID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("id", entityID).Msg("api: deletion propagation failed")
		}
	}

	return decode[T](res)
}

func decode[T any](res response) Result[T] {
	result := Result[T]{
		Status: res.status,
		Error:  res.err,
	}
	if res.err != nil || len(bytes.TrimSpace(res.body)) == 0 {
		return result
	}

	dec := json.NewDecoder(bytes.NewReader(res.body))
	dec.UseNumber()

	var data T
	if err := dec.Decode(&data); err != nil {
		result.Error = &Error{
			Kind:    KindServer,
			Message: fmt.Sprintf("invalid response body: %v", err),
			Code:    "ERR_BAD_RESPONSE",
			Details: string(res.body),
		}
		return result
	}

	result.Data = &data
	return result
}
