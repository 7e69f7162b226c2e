//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"example.com/gamification/internal/domain"
)

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisAggregateCacheRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := NewRedisAggregateCache(ctx, startRedis(ctx, t), time.Minute, nil)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)

	want := domain.Aggregate{UserID: "user-1", TotalXP: 250, Level: 3, EventCount: 9}
	require.NoError(t, c.Set(ctx, want))

	got, ok, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	require.NoError(t, c.Invalidate(ctx, "user-1"))
	_, ok, err = c.Get(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)
}
