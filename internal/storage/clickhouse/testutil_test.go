package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quote-screener/internal/storage/clickhouse"
	"quote-screener/internal/storage/migrations"
)

// startClickHouse runs a disposable ClickHouse with the embedded schema
// applied and returns a connection to its screener database. Skipped under -short.
func startClickHouse(t *testing.T) *clickhouse.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default:@%s:%s/screener", host, port.Port())
	conn, res, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err, "apply migrations")
	require.NotEmpty(t, res.Applied)
	t.Cleanup(func() { conn.Close() })
	return conn
}
