package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "phiscrub:cls:"

// Redis is a Store backed by a Redis database. Keys live under a fixed
// prefix so Clear never touches unrelated data.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis instance at url (redis://host:port/db) and
// pings it before returning.
func NewRedis(ctx context.Context, url string, ttlSeconds int) (*Redis, error) {
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisClient(client, ttlSeconds), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, ttlSeconds int) *Redis {
	return &Redis{client: client, ttl: time.Duration(ttlSeconds) * time.Second}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, redisPrefix+HashKey(key)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *Redis) Put(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisPrefix+HashKey(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisPrefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "redis", Dir: r.client.Options().Addr}
	iter := r.client.Scan(ctx, 0, redisPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.StrLen(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("redis strlen: %w", err)
		}
		stats.Entries++
		stats.TotalBytes += n
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan: %w", err)
	}
	return stats, nil
}

func (r *Redis) Enabled() bool { return true }

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
