package repository

import (
	"context"
	"fmt"
	"time"

	"crossposter/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisMarkerRepository stores processed-message markers in Redis.
// Registration relies on SET NX for the atomic check-and-set the dedup
// contract requires; expiry is delegated to per-key TTL.
type RedisMarkerRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	return redis.NewClient(options)
}

func NewRedisMarkerRepository(client *redis.Client, ttl time.Duration) *RedisMarkerRepository {
	return &RedisMarkerRepository{client: client, ttl: ttl}
}

func markerKey(accountID, chatID int64, messageID int) string {
	return fmt.Sprintf("processed:%d:%d:%d", accountID, chatID, messageID)
}

// Register returns true when the marker was not seen before. The same key
// registered twice returns false on the second call, atomically.
func (r *RedisMarkerRepository) Register(ctx context.Context, accountID, chatID int64, messageID int) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	isNew, err := r.client.SetNX(ctx, markerKey(accountID, chatID, messageID), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register marker: %w", err)
	}
	return isNew, nil
}

// Cleanup is a no-op for Redis: markers carry a TTL and expire on their own.
func (r *RedisMarkerRepository) Cleanup(ctx context.Context, maxAge time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
