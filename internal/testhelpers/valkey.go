//go:build integration

package testhelpers

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/plandesk/plandesk/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	valkeyImage = "valkey/valkey:8-alpine"
	valkeyPort  = nat.Port("6379/tcp")
)

// RunValkeyContainer starts a password-protected Valkey server and returns a
// store configuration for it. Keys are written under "plandesk-test:". The
// container is terminated on test cleanup.
func RunValkeyContainer(t *testing.T) config.StoreConfig {
	t.Helper()

	password := rand.Text()
	address := startValkey(t, password)

	return config.StoreConfig{
		Type: "valkey",
		Valkey: config.ValkeyConfig{
			Address:   address,
			TLS:       false,
			Username:  "default",
			Password:  password,
			KeyPrefix: "plandesk-test:",
		},
	}
}

func startValkey(t *testing.T, password string) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        valkeyImage,
			Env:          map[string]string{"VALKEY_EXTRA_FLAGS": "--requirepass " + password},
			ExposedPorts: []string{string(valkeyPort)},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections"),
				wait.ForListeningPort(valkeyPort),
			),
		},
		Started: true,
		Logger:  log.TestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	mapped, err := container.MappedPort(ctx, valkeyPort)
	require.NoError(t, err)

	// IPv4 loopback: "localhost" may resolve to ::1 on CI runners
	return "127.0.0.1:" + mapped.Port()
}
