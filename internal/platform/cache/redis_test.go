package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseIsExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	lease, err := AcquireLease(ctx, client, "carbonledger:writer", "node-a", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLease(ctx, client, "carbonledger:writer", "node-b", time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	again, err := AcquireLease(ctx, client, "carbonledger:writer", "node-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, again)

	mr.FastForward(30 * time.Second)
	require.NoError(t, lease.Refresh(ctx))
	assert.Greater(t, mr.TTL("carbonledger:writer"), 45*time.Second)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("carbonledger:writer"))
	require.ErrorIs(t, lease.Refresh(ctx), ErrLeaseHeld)

	_, err = AcquireLease(ctx, client, "carbonledger:writer", "node-b", time.Minute)
	require.NoError(t, err)
}

func TestLeaseExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	lease, err := AcquireLease(ctx, client, "k", "node-a", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = AcquireLease(ctx, client, "k", "node-b", time.Second)
	require.NoError(t, err)
	require.ErrorIs(t, lease.Refresh(ctx), ErrLeaseHeld)
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, "node-b", mustGet(t, mr, "k"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
