//go:build integration

package queue_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/kapicorp/webhook-relay/config"
	"github.com/kapicorp/webhook-relay/queue"
)

/* Test Helpers for Redis Streams Integration Tests
 * Following the pattern from: https://eltonminetto.dev/post/2024-02-15-using-test-helpers/
 */

// RedisContainer holds the Redis testcontainer and connection details
type RedisContainer struct {
	Container *testcontainersredis.RedisContainer
	Addr      string
}

// SetupRedisContainer creates and starts a Redis testcontainer
func SetupRedisContainer(t *testing.T, ctx context.Context) (*RedisContainer, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")

	// Remove redis:// prefix if present
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}

	rc := &RedisContainer{
		Container: redisContainer,
		Addr:      addr,
	}

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return rc, cleanup
}

// CreateTestBackend creates a Redis Streams backend connected to the test container
func CreateTestBackend(t *testing.T, addr string, visibility time.Duration) *queue.RedisStreams {
	t.Helper()

	backend, err := queue.NewRedisStreams(config.RedisSettings{
		Addr:              addr,
		Stream:            "webhook-relay-test",
		Group:             "forwarders-test",
		VisibilityTimeout: visibility,
	})
	require.NoError(t, err, "failed to create Redis Streams backend")

	return backend
}

// PendingCount returns the group's pending entry count for assertions
func PendingCount(t *testing.T, addr string) int64 {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	pending, err := client.XPending(context.Background(), "webhook-relay-test", "forwarders-test").Result()
	require.NoError(t, err)

	return pending.Count
}
