package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the shared counter backend.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "blotter:"
)

// consumeScript increments the counter only while it is below the limit so an
// exhausted window is never extended or inflated by further attempts.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[2])
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  return {current, ttl, 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl, 1}
`)

// NewRedisClient dials Redis and pings it so misconfiguration surfaces at startup.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		host := cfg.Address
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. A nil client yields a nil store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

// Consume runs the bounded increment script for key.
func (s *RedisStore) Consume(ctx context.Context, key string, limit int64, window time.Duration) (Counter, error) {
	if s == nil {
		return Counter{}, errors.New("cache: redis store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	res, err := consumeScript.Run(ctx, s.client, []string{s.normalizeKey(key)}, window.Milliseconds(), limit).Result()
	if err != nil {
		return Counter{}, fmt.Errorf("redis: consume: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return Counter{}, fmt.Errorf("redis: unexpected consume reply %T", res)
	}

	used, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	allowed, _ := vals[2].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	return Counter{
		Used:    used,
		Allowed: allowed == 1,
		ResetIn: time.Duration(ttlMs) * time.Millisecond,
	}, nil
}

// Peek reads the counter and its TTL in one round trip without changing them.
func (s *RedisStore) Peek(ctx context.Context, key string, limit int64) (Counter, error) {
	if s == nil {
		return Counter{}, errors.New("cache: redis store not initialised")
	}
	key = s.normalizeKey(key)

	var get *redis.StringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Counter{}, fmt.Errorf("redis: peek: %w", err)
	}

	used, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return Counter{Allowed: limit > 0}, nil
	}
	if err != nil {
		return Counter{}, fmt.Errorf("redis: peek: %w", err)
	}
	out := Counter{Used: used, Allowed: used < limit}
	if d := ttl.Val(); d > 0 {
		out.ResetIn = d
	}
	return out, nil
}

// Delete removes keys from Redis.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errors.New("cache: redis store not initialised")
	}
	if len(keys) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		normalized = append(normalized, s.normalizeKey(key))
	}
	return s.client.Del(ctx, normalized...).Err()
}

func (s *RedisStore) normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, s.prefix) {
		return key
	}
	return s.prefix + key
}
