// Package lock provides cross-process leases for periodic jobs.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLease implements port.Lease with SET NX PX and a token-checked release
type RedisLease struct {
	client *redis.Client
	prefix string
}

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisLease connects to Redis and verifies the connection
func NewRedisLease(ctx context.Context, opts Options) (*RedisLease, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	return NewRedisLeaseWithClient(client), nil
}

// NewRedisLeaseWithClient wraps an existing client
func NewRedisLeaseWithClient(client *redis.Client) *RedisLease {
	return &RedisLease{client: client, prefix: "expense:lease:"}
}

// Acquire takes the named lease for ttl. The returned release only deletes
// the key while it still holds this holder's token.
func (l *RedisLease) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the caller's context may already be cancelled at shutdown
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// Close closes the Redis connection
func (l *RedisLease) Close() error {
	return l.client.Close()
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// LocalLease is the single-process lease used when Redis is disabled
type LocalLease struct{}

// Acquire always succeeds
func (LocalLease) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

var (
	_ port.Lease = (*RedisLease)(nil)
	_ port.Lease = LocalLease{}
)
