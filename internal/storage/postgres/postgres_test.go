//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-storefront/internal/storage"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kart",
				"POSTGRES_PASSWORD": "kart",
				"POSTGRES_DB":       "kart",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://kart:kart@%s:%s/kart?sslmode=disable", host, port.Port())
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	pool, err := NewPool(ctx, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	require.NoError(t, RunMigrations(ctx, pool), "migrations must be re-runnable")

	s := New(pool)

	_, err = s.Get(ctx, "cart:1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Put(ctx, "cart:1", []byte(`{"lines":[]}`)))
	require.NoError(t, s.Put(ctx, "cart:1", []byte(`{"lines":[{"productId":"7"}]}`)))

	got, err := s.Get(ctx, "cart:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"lines":[{"productId":"7"}]}`, string(got))

	require.NoError(t, s.Delete(ctx, "cart:1"))
	_, err = s.Get(ctx, "cart:1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
