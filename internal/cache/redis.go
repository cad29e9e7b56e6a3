package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/carrental/config"
	"github.com/Domenick1991/carrental/internal/domain"
)

type RedisCache struct {
	client    *redis.Client
	clientTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, clientTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		clientTTL: clientTTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetClient returns (nil, nil) on a cache miss.
func (c *RedisCache) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	data, err := c.client.Get(ctx, clientKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeClient(data)
}

func (c *RedisCache) SetClient(ctx context.Context, client *domain.Client) error {
	payload, err := json.Marshal(client)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, clientKey(client.ID), payload, c.clientTTL).Err()
}

// AcquireVehicleLock takes the per-vehicle reservation lock. false means someone else
// holds it.
func (c *RedisCache) AcquireVehicleLock(ctx context.Context, vehicleID int64, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, vehicleLockKey(vehicleID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseVehicleLock(ctx context.Context, vehicleID int64) error {
	return c.client.Del(ctx, vehicleLockKey(vehicleID)).Err()
}

func decodeClient(data []byte) (*domain.Client, error) {
	var client domain.Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, fmt.Errorf("decode cached client: %w", err)
	}
	return &client, nil
}

func clientKey(id int64) string {
	return fmt.Sprintf("cache:client:%d", id)
}

func vehicleLockKey(vehicleID int64) string {
	return fmt.Sprintf("lock:vehicle:%d", vehicleID)
}
