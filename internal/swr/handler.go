// Package swr serves channel requests from the presentation windows with
// stale-while-revalidate semantics: the cached value is replied at once, then
// the resource is fetched again and the fresh value replied as well.
package swr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/plandesk/plandesk/internal/apiclient"
	"github.com/rs/zerolog/log"
)

// ErrUnknownResource is returned for resource names that are not registered.
var ErrUnknownResource = errors.New("unknown resource")

// Source tells which step produced a reply.
type Source int

const (
	SourceCache Source = iota
	SourceNetwork
)

func (s Source) String() string {
	if s == SourceCache {
		return "cache"
	}
	return "network"
}

// Reply is one message on the channel. It encodes as {"<resource>": value}.
type Reply struct {
	Resource string
	Value    any
	Source   Source
}

func (r Reply) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{r.Resource: r.Value})
}

// Reader is the cache read side used for the first reply.
type Reader interface {
	Lookup(ctx context.Context, key string) (any, bool, error)
	Entity(ctx context.Context, key string) (map[string]any, bool, error)
	List(ctx context.Context, key string) ([]any, bool, error)
}

// Notifier reports failures to the user.
type Notifier interface {
	Notify(ctx context.Context, level, message string)
}

type Handler struct {
	client    *apiclient.Client
	cache     Reader
	notifier  Notifier
	resources map[string]Resource
}

func NewHandler(client *apiclient.Client, cache Reader, notifier Notifier, resources ...Resource) *Handler {
	h := &Handler{
		client:    client,
		cache:     cache,
		notifier:  notifier,
		resources: make(map[string]Resource, len(resources)),
	}
	for _, r := range resources {
		h.Register(r)
	}
	return h
}

// Register adds or replaces a resource.
func (h *Handler) Register(r Resource) {
	h.resources[r.Name] = r
}

// Lookup returns the registered resource called name.
func (h *Handler) Lookup(name string) (Resource, bool) {
	r, ok := h.resources[name]
	return r, ok
}

// Serve answers one request for the named resource. The returned sequence
// yields at most two replies, the cached value first and the fresh value
// second, and can be iterated only once. Resolution errors (unknown resource,
// incomplete filter) are returned before any work is done.
//
// The network fetch runs even if the consumer stops after the cached reply
// or ctx is cancelled, so that the cache is still revalidated. It is bounded
// by the HTTP client timeout only.
func (h *Handler) Serve(ctx context.Context, name string, filter Filter) (iter.Seq[Reply], error) {
	resource, ok := h.resources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}

	endpoint, err := resource.Endpoint(filter)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", name, err)
	}

	key := h.client.Keys().Key(endpoint)

	var used atomic.Bool

	return func(yield func(Reply) bool) {
		if used.Swap(true) {
			log.Ctx(ctx).Warn().Str("resource", name).Msg("swr: reply sequence already consumed")
			return
		}

		open := true

		if cached, ok := h.cached(ctx, resource, key); ok {
			open = yield(Reply{Resource: name, Value: resource.decorate(cached), Source: SourceCache})
		}

		fresh, ok := h.fresh(ctx, resource, endpoint)
		if !ok || !open {
			return
		}

		yield(Reply{Resource: name, Value: resource.decorate(fresh), Source: SourceNetwork})
	}, nil
}

// Delete removes an entity of the named resource through the API, which
// propagates the deletion through the cache. Failures are reported to the
// notifier and yield false.
func (h *Handler) Delete(ctx context.Context, name, id string) (bool, error) {
	resource, ok := h.resources[name]
	if !ok || resource.Collection == "" {
		return false, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}

	result := apiclient.Delete[any](ctx, h.client, resource.Collection, id)
	if apiErr, failed := result.Failed(); failed {
		h.notifier.Notify(ctx, "error", apiErr.Message)
		return false, nil
	}

	return true, nil
}

func (h *Handler) cached(ctx context.Context, resource Resource, key string) (any, bool) {
	var (
		value any
		found bool
		err   error
	)

	switch resource.Shape {
	case ShapeEntity:
		value, found, err = h.cache.Entity(ctx, key)
	case ShapeList:
		value, found, err = h.cache.List(ctx, key)
	default:
		value, found, err = h.cache.Lookup(ctx, key)
	}

	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("swr: cache read failed, skipping cached reply")
		return nil, false
	}

	return value, found
}

func (h *Handler) fresh(ctx context.Context, resource Resource, endpoint string) (any, bool) {
	// a window closing its request must not abort the revalidation
	ctx = context.WithoutCancel(ctx)

	result := apiclient.Get[any](ctx, h.client, endpoint, apiclient.WithCache())

	if apiErr, failed := result.Failed(); failed {
		log.Ctx(ctx).Info().
			Str("resource", resource.Name).
			Int("status", result.Status).
			Str("error", apiErr.Message).
			Msg("swr: revalidation failed")
		h.notifier.Notify(ctx, "error", apiErr.Message)
		return nil, false
	}

	if result.Data == nil {
		return nil, false
	}

	return *result.Data, true
}
