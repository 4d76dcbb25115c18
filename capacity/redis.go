package capacity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"remanflow/config"
	"remanflow/store"
)

const keyPrefix = "remanflow:bookings:"

// RedisStore caches each provider's booking list as one JSON value.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg *config.RedisConfig) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

func bookingsKey(providerID string) string {
	return keyPrefix + providerID
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetBookings returns ErrCacheMiss when nothing is cached for the provider.
func (r *RedisStore) GetBookings(ctx context.Context, providerID string) ([]store.Booking, error) {
	raw, err := r.client.Get(ctx, bookingsKey(providerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var out []store.Booking
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode cached bookings for %s: %w", providerID, err)
	}
	return out, nil
}

func (r *RedisStore) SetBookings(ctx context.Context, providerID string, bookings []store.Booking) error {
	raw, err := json.Marshal(bookings)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, bookingsKey(providerID), raw, 0).Err()
}

// FlushAll drops every cached booking list.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
