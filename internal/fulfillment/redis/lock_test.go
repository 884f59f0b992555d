package redis_test

import (
	"context"
	"testing"
	"time"

	fulfillmentredis "ms-fulfillment/internal/fulfillment/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestLockOrderAcquireAndRelease(t *testing.T) {
	_, client := setupTestRedis(t)
	locks := fulfillmentredis.NewLocks(client, 30*time.Second)
	ctx := context.Background()

	ok, err := locks.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Held leases block re-acquisition.
	ok, err = locks.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locks.UnlockOrder(ctx, "order-1"))

	ok, err = locks.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocksAreIndependentPerOrder(t *testing.T) {
	_, client := setupTestRedis(t)
	locks := fulfillmentredis.NewLocks(client, 30*time.Second)
	ctx := context.Background()

	ok, err := locks.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locks.LockOrder(ctx, "order-2")
	require.NoError(t, err)
	assert.True(t, ok, "locking one order must not block another")
}

func TestOrderAndReaderLocksDoNotCollide(t *testing.T) {
	_, client := setupTestRedis(t)
	locks := fulfillmentredis.NewLocks(client, 30*time.Second)
	ctx := context.Background()

	ok, err := locks.LockOrder(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locks.LockReader(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok, "order and reader leases live under separate prefixes")
}

func TestReleaseRequiresOwnership(t *testing.T) {
	_, client := setupTestRedis(t)
	holder := fulfillmentredis.NewLocks(client, 30*time.Second)
	intruder := fulfillmentredis.NewLocks(client, 30*time.Second)
	ctx := context.Background()

	ok, err := holder.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	// A different instance releasing is a silent no-op; the lease stays.
	require.NoError(t, intruder.UnlockOrder(ctx, "order-1"))

	ok, err = intruder.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok, "lease must survive a non-owner release")
}

func TestLeaseExpiresAfterTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	locks := fulfillmentredis.NewLocks(client, 5*time.Second)
	ctx := context.Background()

	ok, err := locks.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = locks.LockOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease is free to take")
}

func TestReleaseAfterExpiryIsNoOp(t *testing.T) {
	mr, client := setupTestRedis(t)
	locks := fulfillmentredis.NewLocks(client, 5*time.Second)
	ctx := context.Background()

	ok, err := locks.LockReader(ctx, "tmr_1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	assert.NoError(t, locks.UnlockReader(ctx, "tmr_1"))
}
