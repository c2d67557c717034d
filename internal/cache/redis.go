package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airways/config"
	"github.com/Domenick1991/airways/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes a hold only when it still carries the caller's token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client     *redis.Client
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL,
	)
}

func NewRedisCacheWithClient(client *redis.Client, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetFlights returns nil, nil on a cache miss.
func (c *RedisCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var flights []domain.Flight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

func (c *RedisCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightsKey(), payload, c.flightsTTL).Err()
}

func (c *RedisCache) InvalidateFlights(ctx context.Context) error {
	return c.client.Del(ctx, flightsKey()).Err()
}

// HoldSeats places an advisory hold on every seat or on none. The returned
// token is needed to release the holds.
func (c *RedisCache) HoldSeats(ctx context.Context, flightID int64, seatIDs []int64, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	held := make([]int64, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		ok, err := c.client.SetNX(ctx, seatHoldKey(flightID, seatID), token, ttl).Result()
		if err != nil || !ok {
			_ = c.ReleaseSeats(ctx, flightID, held, token)
			return "", false, err
		}
		held = append(held, seatID)
	}
	return token, true, nil
}

func (c *RedisCache) ReleaseSeats(ctx context.Context, flightID int64, seatIDs []int64, token string) error {
	var errs []error
	for _, seatID := range seatIDs {
		if err := releaseIfOwner.Run(ctx, c.client, []string{seatHoldKey(flightID, seatID)}, token).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func flightsKey() string {
	return "cache:flights"
}

func seatHoldKey(flightID, seatID int64) string {
	return fmt.Sprintf("hold:flight:%d:seat:%d", flightID, seatID)
}
