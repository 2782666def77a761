package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/config"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type RedisRecentCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRecentCache(cfg config.RedisConfig, prefix string) (*RedisRecentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRecentCacheFromClient(client, prefix), nil
}

// NewRedisRecentCacheFromClient wraps an existing client.
func NewRedisRecentCacheFromClient(client *redis.Client, prefix string) *RedisRecentCache {
	return &RedisRecentCache{
		client: client,
		prefix: prefix,
	}
}

// GenerationKey holds the room generation counter.
func (c *RedisRecentCache) GenerationKey(roomID int) string {
	return fmt.Sprintf("%s:%d:gen", c.prefix, roomID)
}

// PageKey is a hash of limit -> page for one room generation.
func (c *RedisRecentCache) PageKey(roomID int, generation int64) string {
	return fmt.Sprintf("%s:%d:%d", c.prefix, roomID, generation)
}

func (c *RedisRecentCache) Get(ctx context.Context, roomID, limit int) ([]domain.ChatMessage, int64, error) {
	gen, err := c.client.Get(ctx, c.GenerationKey(roomID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to get generation from redis: %w", err)
	}

	data, err := c.client.HGet(ctx, c.PageKey(roomID, gen), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gen, ErrCacheMiss
		}
		return nil, gen, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []domain.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, gen, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return msgs, gen, nil
}

func (c *RedisRecentCache) Set(ctx context.Context, roomID int, generation int64, limit int, msgs []domain.ChatMessage, ttl time.Duration) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := c.PageKey(roomID, generation)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(limit), data)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisRecentCache) Invalidate(ctx context.Context, roomID int) error {
	if err := c.client.Incr(ctx, c.GenerationKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to bump generation in redis: %w", err)
	}
	return nil
}

func (c *RedisRecentCache) Close() error {
	return c.client.Close()
}
