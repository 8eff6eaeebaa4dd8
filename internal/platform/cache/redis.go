package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// ErrLeaseHeld is returned when another owner holds the lease.
var ErrLeaseHeld = errors.New("platform/cache: lease held by another owner")

// Lease is an exclusive, expiring Redis key owned by one process.
type Lease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

var (
	refreshScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`)
	releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`)
)

// AcquireLease takes key for owner, failing with ErrLeaseHeld when someone
// else holds it.
func AcquireLease(ctx context.Context, client *redis.Client, key, owner string, ttl time.Duration) (*Lease, error) {
	if client == nil {
		return nil, errors.New("platform/cache: client not initialised")
	}
	ok, err := client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	if !ok {
		current, err := client.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
		}
		if current != owner {
			return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, current)
		}
	}
	return &Lease{client: client, key: key, owner: owner, ttl: ttl}, nil
}

// Refresh extends the lease. It fails with ErrLeaseHeld once the lease has
// been lost.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("platform/cache: refresh %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// Keep refreshes the lease every ttl/3 until ctx ends or the lease is lost.
func (l *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}

// Release drops the lease if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("platform/cache: release %s: %w", l.key, err)
	}
	return nil
}
