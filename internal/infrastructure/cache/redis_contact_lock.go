package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

// RedisContactLock implements ContactLock using Redis
// This is suitable for distributed deployments where multiple instances
// resolve contacts against the same provider company
type RedisContactLock struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisContactLock creates a new Redis-based contact lock
func NewRedisContactLock(cfg RedisConfig) (*RedisContactLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisContactLock{
		client:    client,
		keyPrefix: "invoicing:contact_lock:",
	}, nil
}

// NewRedisContactLockWithClient creates a lock with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisContactLockWithClient(client *redis.Client, keyPrefix string) *RedisContactLock {
	if keyPrefix == "" {
		keyPrefix = "invoicing:contact_lock:"
	}
	return &RedisContactLock{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the lock for a tax number with a TTL
// Uses SETNX (SET if Not eXists) for atomic operation
func (l *RedisContactLock) Acquire(ctx context.Context, taxNumber string, ttl time.Duration) (bool, error) {
	key := l.keyPrefix + taxNumber

	result, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire contact lock: %w", err)
	}

	return result, nil
}

// Release frees the lock for a tax number
func (l *RedisContactLock) Release(ctx context.Context, taxNumber string) error {
	key := l.keyPrefix + taxNumber

	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release contact lock: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (l *RedisContactLock) Close() error {
	return l.client.Close()
}

// Ensure RedisContactLock implements ContactLock
var _ invoicing.ContactLock = (*RedisContactLock)(nil)
