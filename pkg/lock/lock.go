// Package lock keeps two rotation runs for the same principal from
// interleaving.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zostay/keyrotate/pkg/config"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another rotation run holds the lock")

// Unlock releases a lock taken by Lock.
type Unlock func(ctx context.Context) error

// Locker takes a named lock.
type Locker interface {
	Lock(ctx context.Context, principal string) (Unlock, error)
}

// Nop is the Locker used when no lock server is configured. It always
// succeeds and holds nothing.
type Nop struct{}

// Lock returns an Unlock that does nothing.
func (Nop) Lock(context.Context, string) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

// Client is the part of the redis client used by Redis.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// release deletes the key only while it still holds our token, so an expired
// lock taken over by another run is left alone.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis takes locks as redis keys named keyrotate:<principal> that expire
// after the TTL.
type Redis struct {
	client Client
	ttl    time.Duration
}

// NewRedis returns a Redis locker over the given client.
func NewRedis(client Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Dial connects to the lock server described by the configuration.
func Dial(l config.Lock) *Redis {
	rc := redis.NewClient(&redis.Options{
		Addr:     l.RedisAddr,
		Password: l.RedisPassword,
		DB:       l.RedisDB,
	})
	return NewRedis(rc, l.TTL)
}

// Key returns the redis key used to lock the principal.
func Key(principal string) string {
	return "keyrotate:" + principal
}

// Lock takes the lock for the principal or returns ErrLocked.
func (r *Redis) Lock(ctx context.Context, principal string) (Unlock, error) {
	logger := config.LoggerFrom(ctx).Sugar()

	key := Key(principal)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to take lock %q: %w", key, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	logger.Debugw(
		"took rotation lock",
		"principal", principal,
		"lock", key,
		"ttl", r.ttl,
	)

	return func(ctx context.Context) error {
		n, err := release.Run(ctx, r.client, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("failed to release lock %q: %w", key, err)
		}

		if n == 0 {
			logger.Warnw(
				"rotation lock expired before release",
				"principal", principal,
				"lock", key,
			)
		}

		return nil
	}, nil
}
