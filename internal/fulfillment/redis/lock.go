package redis

import (
	"context"
	"fmt"
	"time"

	"ms-fulfillment/internal/utils"

	"github.com/go-redis/redis/v8"
)

const (
	orderLockPrefix  = "order_lock:"
	readerLockPrefix = "reader_lock:"
)

// Locks leases per-order and per-reader locks in Redis. Leases carry a
// TTL so a crashed workflow instance cannot wedge an order forever; the
// store's conditional updates remain the final arbiter.
type Locks struct {
	Client *redis.Client
	TTL    time.Duration

	// owner identifies this service instance; only the holder's token
	// releases a lease.
	owner string
}

func NewLocks(client *redis.Client, ttl time.Duration) *Locks {
	return &Locks{
		Client: client,
		TTL:    ttl,
		owner:  utils.GenerateLockToken(),
	}
}

// LockOrder leases the per-order lock. Returns false when another
// workflow instance holds it.
func (l *Locks) LockOrder(ctx context.Context, orderID string) (bool, error) {
	return l.acquire(ctx, orderLockPrefix+orderID)
}

func (l *Locks) UnlockOrder(ctx context.Context, orderID string) error {
	return l.release(ctx, orderLockPrefix+orderID)
}

// LockReader leases the per-reader lock. A reader carries at most one
// in-flight gateway action; a second caller observes false.
func (l *Locks) LockReader(ctx context.Context, readerID string) (bool, error) {
	return l.acquire(ctx, readerLockPrefix+readerID)
}

func (l *Locks) UnlockReader(ctx context.Context, readerID string) error {
	return l.release(ctx, readerLockPrefix+readerID)
}

func (l *Locks) acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.Client.SetNX(ctx, key, l.owner, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock error: %w", err)
	}
	return ok, nil
}

func (l *Locks) release(ctx context.Context, key string) error {
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // lease already expired
	}
	if err != nil {
		return err
	}
	if val == l.owner {
		_, err = l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
