package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/valkey-io/valkey-go"
)

// Valkey implements Store on a Valkey server. Keys are namespaced with a
// prefix so several agents can share a server. Values never expire.
type Valkey struct {
	client valkey.Client
	prefix string
}

// NewValkey creates a Valkey-backed store using an existing client.
func NewValkey(client valkey.Client, prefix string) *Valkey {
	return &Valkey{
		client: client,
		prefix: prefix,
	}
}

func (v *Valkey) storageKey(key string) string {
	return v.prefix + key
}

// Get retrieves a value. A missing key is reported as not found.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := v.client.B().Get().Key(v.storageKey(key)).Build()
	result := v.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get stored value: %w", err)
	}

	data, err := result.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read stored value: %w", err)
	}

	return data, true, nil
}

// Set stores a value without expiry.
func (v *Valkey) Set(ctx context.Context, key string, value []byte) error {
	cmd := v.client.B().Set().Key(v.storageKey(key)).Value(valkey.BinaryString(value)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set stored value: %w", err)
	}
	return nil
}

// Delete removes a value.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	cmd := v.client.B().Del().Key(v.storageKey(key)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete stored value: %w", err)
	}
	return nil
}

// Keys lists the keys under the configured prefix, with the prefix removed.
func (v *Valkey) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := v.client.B().Scan().Cursor(cursor).Match(prefixPattern(v.prefix)).Count(100).Build()
		entry, err := v.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan stored keys: %w", err)
		}

		for _, k := range entry.Elements {
			if key, ok := strings.CutPrefix(k, v.prefix); ok {
				keys = append(keys, key)
			}
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// Close releases the client connection.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}

// StaticCredentialsFn returns an AuthCredentialsFn that always returns the
// configured username and password.
func StaticCredentialsFn(username, password string) func(valkey.AuthCredentialsContext) (valkey.AuthCredentials, error) {
	return func(valkey.AuthCredentialsContext) (valkey.AuthCredentials, error) {
		return valkey.AuthCredentials{
			Username: username,
			Password: password,
		}, nil
	}
}

// prefixPattern returns a SCAN MATCH pattern selecting the keys that start
// with prefix, with glob metacharacters in the prefix escaped.
func prefixPattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '^', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
