package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API     APIConfig
	Channel ChannelConfig
	Folders FoldersConfig
	Observe ObserveConfig
	Store   StoreConfig
}

// APIConfig describes the remote API that the control process talks to.
type APIConfig struct {
	BaseURL        string `env:"API_BASE_URL, required"`
	Prefix         string `env:"API_PREFIX, default=/api"`
	TimeoutSeconds int    `env:"API_TIMEOUT_SECS, default=30"`

	OutgoingHTTPMaxIdleConns    int `env:"API_OUTGOING_MAX_IDLE_CONNS, default=20"`
	OutgoingHTTPMaxConnsPerHost int `env:"API_OUTGOING_MAX_CONNS_PER_HOST, default=10"`
}

// ChannelConfig configures the loopback server used by presentation windows.
type ChannelConfig struct {
	Port                   int `env:"CHANNEL_PORT, default=7420"`
	ShutdownTimeoutSeconds int `env:"CHANNEL_SHUTDOWN_TIMEOUT_SECS, default=10"`
}

// StoreConfig specifies the persisted key-value store.
type StoreConfig struct {
	// Type selects the store implementation: "file" (default), "memory" or
	// "valkey".
	Type string `env:"STORE_TYPE, default=file"`

	// Path is the JSON document used by the file store.
	Path string `env:"STORE_PATH, default=plandesk-store.json"`

	// Valkey holds shared store settings.
	Valkey ValkeyConfig
}

// ValkeyConfig specifies the Valkey store connection.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	Username string `env:"VALKEY_USERNAME"`
	Password string `env:"VALKEY_PASSWORD"`

	// KeyPrefix namespaces every stored key.
	KeyPrefix string `env:"VALKEY_KEY_PREFIX, default=plandesk:"`
}

// FoldersConfig locates the local folder index used to decorate entities.
type FoldersConfig struct {
	IndexPath string `env:"FOLDERS_INDEX_PATH"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=plandesk"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.API.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid API configuration: %w", err)
	}

	err = cfg.Store.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid store configuration: %w", err)
	}

	return cfg, nil
}

// LoadStore reads only the store settings, for tools that work on the
// persisted store without talking to the API.
func LoadStore(ctx context.Context) (StoreConfig, error) {
	return loadStore(ctx, nil)
}

func loadStore(ctx context.Context, lookup envconfig.Lookuper) (StoreConfig, error) {
	var cfg StoreConfig
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup,
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid store configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the API base URL is absolute.
func (c *APIConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("API_BASE_URL could not be parsed: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("API_BASE_URL must be absolute, got %q", c.BaseURL)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("API_TIMEOUT_SECS must be positive, got %d", c.TimeoutSeconds)
	}
	return nil
}

// Validate checks that the store configuration is valid.
func (c *StoreConfig) Validate() error {
	switch c.Type {
	case "file":
		if c.Path == "" {
			return fmt.Errorf("STORE_PATH required when STORE_TYPE=file")
		}
	case "memory":
	case "valkey":
		if c.Valkey.Address == "" {
			return fmt.Errorf("VALKEY_ADDRESS required when STORE_TYPE=valkey")
		}
	default:
		return fmt.Errorf("invalid store type %q: must be one of \"file\", \"memory\" or \"valkey\"", c.Type)
	}

	return nil
}
