// Package guard provides a Redis-backed short-lived lock that rejects
// concurrent double submission of the same decision.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Acquire when another caller holds the key.
var ErrHeld = errors.New("guard: lock held")

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 30 * time.Second

// releaseScript deletes the key only if it still holds our token, so a
// holder whose lock expired cannot release someone else's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock hands out SETNX locks under a key prefix.
type Lock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Dial connects to redisURL and verifies the connection.
func Dial(redisURL string, ttl time.Duration) (*Lock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("guard: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("guard: connect to redis: %w", err)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{client: client, prefix: "querydesk:lock:", ttl: ttl}
}

// Acquire takes key for the lock's TTL. The returned release func is safe to
// call more than once.
func (l *Lock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key

	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("guard: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Use a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(rctx, l.client, []string{full}, token)
	}, nil
}

// Ping checks that Redis is reachable.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *Lock) Close() error {
	return l.client.Close()
}
