package effects

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Invalidator marks cached reads stale.
type Invalidator interface {
	Invalidate(ctx context.Context, keys []Key) error
}

// Registry dispatches invalidations to in-process caches, keyed by domain.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Domain][]func(Key)
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Domain][]func(Key))}
}

// Register adds fn for domain. Handlers run synchronously and must not block.
func (r *Registry) Register(domain Domain, fn func(Key)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[domain] = append(r.handlers[domain], fn)
}

func (r *Registry) Invalidate(_ context.Context, keys []Key) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		for _, fn := range r.handlers[k.Domain] {
			fn(k)
		}
	}
	return nil
}

// RedisInvalidator deletes shared cache entries and announces the invalidation
// on a pub/sub channel for other processes holding local copies.
type RedisInvalidator struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisInvalidator keys entries as "<prefix>:<key>" and publishes on "<prefix>:invalidate".
func NewRedisInvalidator(client redis.UniversalClient, prefix string) *RedisInvalidator {
	if prefix == "" {
		prefix = "cache"
	}
	return &RedisInvalidator{client: client, prefix: prefix}
}

// Channel is where invalidation announcements are published.
func (r *RedisInvalidator) Channel() string {
	return r.prefix + ":invalidate"
}

type invalidationMessage struct {
	Keys []string  `json:"keys"`
	At   time.Time `json:"at"`
}

func (r *RedisInvalidator) Invalidate(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}

	names := make([]string, 0, len(keys))
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
		redisKeys = append(redisKeys, r.prefix+":"+k.String())
	}
	msg, err := json.Marshal(invalidationMessage{Keys: names, At: time.Now().UTC()})
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, redisKeys...)
	pipe.Publish(ctx, r.Channel(), msg)
	_, err = pipe.Exec(ctx)
	return err
}

// MultiInvalidator fans out to every member and joins their errors.
type MultiInvalidator []Invalidator

func (m MultiInvalidator) Invalidate(ctx context.Context, keys []Key) error {
	var errs []error
	for _, inv := range m {
		if inv == nil {
			continue
		}
		if err := inv.Invalidate(ctx, keys); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
