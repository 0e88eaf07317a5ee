package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 24 * time.Hour

// RedisCache stores retrieval answers keyed by policy document and query.
type RedisCache struct {
	client     *redis.Client
	documentID string
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRedisCache connects to addr and verifies the connection with a ping.
func NewRedisCache(ctx context.Context, addr, password string, db int, documentID string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c := NewRedisCacheFromClient(client, documentID, ttl, logger)
	c.logger.Info("redis cache initialized", zap.String("addr", addr), zap.Duration("ttl", c.ttl))
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, documentID string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, documentID: documentID, ttl: ttl, logger: logger}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Key is the redis key for a query against documentID.
func Key(documentID, query string) string {
	sum := sha256.Sum256([]byte(documentID + "|" + query))
	return "retrieval:" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, query string) (string, bool, error) {
	key := Key(c.documentID, query)
	answer, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get retrieval cache: %w", err)
	}
	c.logger.Debug("retrieval cache hit", zap.String("key", key))
	return answer, true, nil
}

func (c *RedisCache) Set(ctx context.Context, query, answer string) error {
	key := Key(c.documentID, query)
	if err := c.client.Set(ctx, key, answer, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set retrieval cache: %w", err)
	}
	return nil
}
