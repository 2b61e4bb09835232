// Package cache holds the CacheStore: the mapping from endpoint key to the
// last known API response, persisted under a single store key.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/plandesk/plandesk/internal/cache/merge"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/rs/zerolog/log"
)

// Cache reads and mutates the CacheStore. Every mutation is a single
// read-modify-write of the whole document, serialised by a mutex so that
// concurrent merges within the process never interleave. Network I/O happens
// outside this lock: responses are merged in the order they arrive, not the
// order they were requested.
type Cache struct {
	store store.Store
	mu    sync.Mutex
}

func New(s store.Store) *Cache {
	return &Cache{store: s}
}

// Snapshot returns the whole CacheStore. A missing document is an empty
// mapping.
func (c *Cache) Snapshot(ctx context.Context) (map[string]any, error) {
	return c.read(ctx)
}

// Lookup returns the cached value for an endpoint key.
func (c *Cache) Lookup(ctx context.Context, key string) (any, bool, error) {
	snapshot, err := c.read(ctx)
	if err != nil {
		return nil, false, err
	}

	value, ok := snapshot[key]
	return value, ok, nil
}

// Entity returns the cached single-entity value for an endpoint key. Values of
// any other shape are reported as absent.
func (c *Cache) Entity(ctx context.Context, key string) (map[string]any, bool, error) {
	value, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	entity, ok := value.(map[string]any)
	return entity, ok && entity != nil, nil
}

// List returns the cached list value for an endpoint key. Values of any other
// shape are reported as absent.
func (c *Cache) List(ctx context.Context, key string) ([]any, bool, error) {
	value, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	items, ok := value.([]any)
	return items, ok && items != nil, nil
}

// Merge applies incoming to the CacheStore and persists the result, returning
// the updated mapping.
func (c *Cache) Merge(ctx context.Context, incoming map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.read(ctx)
	if err != nil {
		return nil, err
	}

	updated := merge.Merge(existing, incoming)
	if err := c.write(ctx, updated); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Strs("keys", slices.Sorted(maps.Keys(incoming))).
		Msg("cache: merged")

	return updated, nil
}

// MergeResponse decodes a raw response body and merges it under key.
func (c *Cache) MergeResponse(ctx context.Context, key string, body []byte) error {
	value, err := Decode(body)
	if err != nil {
		return fmt.Errorf("decoding response for %s: %w", key, err)
	}

	_, err = c.Merge(ctx, map[string]any{key: value})
	return err
}

// Clear deletes the CacheStore as a unit.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, store.KeyResponse); err != nil {
		return fmt.Errorf("clearing response cache: %w", err)
	}
	return nil
}

// Decode parses a JSON document into plain values, keeping numbers as
// json.Number so that ids round-trip unchanged.
func Decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func (c *Cache) read(ctx context.Context) (map[string]any, error) {
	data, found, err := c.store.Get(ctx, store.KeyResponse)
	if err != nil {
		return nil, fmt.Errorf("reading response cache: %w", err)
	}
	if !found {
		return map[string]any{}, nil
	}

	value, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding response cache: %w", err)
	}

	snapshot, ok := value.(map[string]any)
	if !ok || snapshot == nil {
		log.Ctx(ctx).Warn().Msg("cache: stored response is not an object, treating as empty")
		return map[string]any{}, nil
	}

	return snapshot, nil
}

func (c *Cache) write(ctx context.Context, snapshot map[string]any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding response cache: %w", err)
	}

	if err := c.store.Set(ctx, store.KeyResponse, data); err != nil {
		return fmt.Errorf("writing response cache: %w", err)
	}
	return nil
}
