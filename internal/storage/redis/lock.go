// Package redis provides the per-user checkout lock.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/key"
)

const keyPrefix = "checkout:lock:"

// unlockScript deletes the lock only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options configures the Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewClient returns a client for opts.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
}

var _ checkout.Locker = (*Locker)(nil)

// Locker implements checkout.Locker with SET NX PX. A crashed holder
// releases the lock when its TTL expires.
type Locker struct {
	client redis.UniversalClient
	token  func() string
}

// NewLocker returns a Locker over client.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client, token: uuid.NewString}
}

// Lock acquires the checkout lock for userID, or returns checkout.ErrLocked
// when it is held.
func (l *Locker) Lock(ctx context.Context, userID key.Key, ttl time.Duration) (func(context.Context) error, error) {
	k := keyPrefix + userID.String()
	token := l.token()

	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("locking %q: %w", k, err)
	}
	if !ok {
		return nil, checkout.ErrLocked
	}

	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("unlocking %q: %w", k, err)
		}
		return nil
	}, nil
}

// Ping checks the server is reachable.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
