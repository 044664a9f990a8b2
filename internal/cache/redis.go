package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/courierbooking/config"
	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client      *redis.Client
	snapshotTTL time.Duration
	pilotsTTL   time.Duration
}

func NewRedisCache(cfg config.RedisConfig, pilotsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		snapshotTTL: 24 * time.Hour,
		pilotsTTL:   pilotsTTL,
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	data, err := c.client.Get(ctx, bookingKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var b domain.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SetBooking stores b unless the cached snapshot was written later by the
// store. The whole snapshot is replaced, never merged.
func (c *RedisCache) SetBooking(ctx context.Context, b *domain.Booking) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	key := bookingKey(b.ID)

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var cached domain.Booking
			if json.Unmarshal(current, &cached) == nil && cached.NewerThan(b) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.snapshotTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone else wrote in between; their copy is at least as fresh.
		return nil
	}
	return err
}

func (c *RedisCache) DeleteBooking(ctx context.Context, id string) error {
	return c.client.Del(ctx, bookingKey(id)).Err()
}

// releaseLock deletes the lock only while it still holds the caller's token,
// so an expired holder cannot free a lock taken over by someone else.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireBookingLock returns the owner token when the lock was taken and ""
// when another holder has it.
func (c *RedisCache) AcquireBookingLock(ctx context.Context, id string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, bookingLockKey(id), token, ttl).Result()
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

func (c *RedisCache) ReleaseBookingLock(ctx context.Context, id, token string) error {
	return releaseLock.Run(ctx, c.client, []string{bookingLockKey(id)}, token).Err()
}

func (c *RedisCache) GetPilots(ctx context.Context, filter domain.PilotFilter) ([]domain.Pilot, error) {
	data, err := c.client.Get(ctx, pilotsKey(filter)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var pilots []domain.Pilot
	if err := json.Unmarshal(data, &pilots); err != nil {
		return nil, err
	}
	return pilots, nil
}

func (c *RedisCache) SetPilots(ctx context.Context, filter domain.PilotFilter, pilots []domain.Pilot) error {
	payload, err := json.Marshal(pilots)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pilotsKey(filter), payload, c.pilotsTTL).Err()
}

// InvalidatePilots drops every cached pilot listing, e.g. after an assignment.
func (c *RedisCache) InvalidatePilots(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "cache:pilots:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *RedisCache) SetPilotPosition(ctx context.Context, u domain.CoordinateUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, positionKey(u.BookingID), payload, c.snapshotTTL).Err()
}

func bookingKey(id string) string {
	return "cache:booking:" + id
}

func bookingLockKey(id string) string {
	return "lock:booking:" + id
}

func positionKey(bookingID string) string {
	return "cache:position:" + bookingID
}

func pilotsKey(filter domain.PilotFilter) string {
	status, online := "any", "any"
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	if filter.Online != nil {
		online = fmt.Sprintf("%t", *filter.Online)
	}
	return fmt.Sprintf("cache:pilots:%s:%s", status, online)
}
