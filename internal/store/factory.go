package store

import (
	"crypto/tls"
	"fmt"

	"github.com/plandesk/plandesk/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// NewFromConfig creates a store implementation based on the provided
// configuration. The store type must be "file", "memory" or "valkey"; any
// other value returns an error.
func NewFromConfig(storeConfig config.StoreConfig) (Store, error) {
	switch storeConfig.Type {
	case "file":
		log.Info().
			Str("store_type", "file").
			Str("path", storeConfig.Path).
			Msg("initializing file store")

		file, err := OpenFile(storeConfig.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}

		return NewInstrumented(file, "file"), nil

	case "memory":
		log.Info().
			Str("store_type", "memory").
			Msg("initializing in-memory store")

		return NewInstrumented(NewMemory(), "memory"), nil

	case "valkey":
		log.Info().
			Str("store_type", "valkey").
			Str("address", storeConfig.Valkey.Address).
			Bool("tls", storeConfig.Valkey.TLS).
			Msg("initializing valkey store")

		if storeConfig.Valkey.Address == "" {
			return nil, fmt.Errorf("valkey address is required when store type is valkey")
		}

		valkeyOpts := valkey.ClientOption{
			InitAddress: []string{storeConfig.Valkey.Address},
			AuthCredentialsFn: StaticCredentialsFn(
				storeConfig.Valkey.Username,
				storeConfig.Valkey.Password,
			),
			// the store does not use client-side caching
			DisableCache: true,
		}

		if storeConfig.Valkey.TLS {
			valkeyOpts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		client, err := valkey.NewClient(valkeyOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey client: %w", err)
		}

		return NewInstrumented(NewValkey(client, storeConfig.Valkey.KeyPrefix), "valkey"), nil

	default:
		return nil, fmt.Errorf("invalid store type %q: must be one of \"file\", \"memory\" or \"valkey\"", storeConfig.Type)
	}
}
