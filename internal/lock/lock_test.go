package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysAcquires(t *testing.T) {
	var l Locker = Noop{}
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "train", time.Minute)
	require.NoError(t, err)
	r2, err := l.Acquire(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, r1(ctx))
	assert.NoError(t, r2(ctx))
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	l := NewRedisLocker(client, "aqi-test:")

	release, err := l.Acquire(ctx, "infer", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "infer", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	release, err = l.Acquire(ctx, "infer", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, release(ctx))
}
