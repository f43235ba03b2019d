package draft

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores drafts as plain string keys. A zero TTL keeps
// drafts until they are cleared.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*RedisBackend)

// WithTTL expires drafts that have not been saved for d.
func WithTTL(d time.Duration) RedisOption { return func(r *RedisBackend) { r.ttl = d } }

func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (r *RedisBackend) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
