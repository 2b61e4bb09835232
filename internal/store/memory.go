package store

import (
	"context"
	"slices"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is an in-memory store implementation using otter. Entries never
// expire and the cache is unbounded: values live until they are overwritten
// or deleted.
type Memory struct {
	cache   *otter.Cache[string, []byte]
	counter *stats.Counter
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, []byte]{
		StatsRecorder: counter,
	})

	return &Memory{
		cache:   cache,
		counter: counter,
	}
}

// Get retrieves a value from the store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, false, nil
	}

	return slices.Clone(value), true, nil
}

// Set stores a value.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, slices.Clone(value))
	return nil
}

// Delete removes a value.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Keys lists the stored keys in sorted order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	keys := make([]string, 0, m.cache.EstimatedSize())
	for k := range m.cache.Keys() {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Stats reports hit and miss counts recorded since creation.
func (m *Memory) Stats() stats.Stats {
	return m.counter.Snapshot()
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error {
	return nil
}
