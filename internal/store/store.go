// Package store provides the persisted key-value capability used by the
// control process. Values are opaque JSON documents keyed by string.
package store

import (
	"context"
)

// Keys owned by the control process.
const (
	KeyResponse  = "response"
	KeyAuthToken = "authToken"
	KeyUserID    = "userId"
)

// Store defines the key-value capability. Implementations must be safe for
// concurrent use; each call is atomic on its own but there is no transaction
// spanning calls.
type Store interface {
	// Get retrieves the raw JSON value stored at key.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a raw JSON value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}
