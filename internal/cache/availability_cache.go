package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// AvailabilityCache keeps flight availability answers in Redis behind a short
// TTL. Availability is advisory (holds invalidate it constantly), so cache
// misses and Redis outages both fall through to the database.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewAvailabilityCache connects to Redis. A blank addr returns (nil, nil),
// which disables caching; callers must tolerate a nil cache.
func NewAvailabilityCache(cfg config.RedisConfig, logger *logrus.Logger) (*AvailabilityCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &AvailabilityCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

func availabilityKey(flightID string) string {
	return "availability:" + flightID
}

// Get returns the cached availability, or nil on miss or Redis trouble.
func (c *AvailabilityCache) Get(ctx context.Context, flightID string) *models.FlightAvailability {
	if c == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, availabilityKey(flightID)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.logger.WithError(err).WithField("flight_id", flightID).Warn("Availability cache read failed")
		return nil
	}

	var availability models.FlightAvailability
	if err := json.Unmarshal(raw, &availability); err != nil {
		c.logger.WithError(err).WithField("flight_id", flightID).Warn("Availability cache entry corrupt")
		return nil
	}
	return &availability
}

// Set stores an availability answer under the configured TTL, best-effort.
func (c *AvailabilityCache) Set(ctx context.Context, availability *models.FlightAvailability) {
	if c == nil || availability == nil {
		return
	}

	raw, err := json.Marshal(availability)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to serialize availability for cache")
		return
	}
	if err := c.client.Set(ctx, availabilityKey(availability.FlightID), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("flight_id", availability.FlightID).Warn("Availability cache write failed")
	}
}

// Invalidate drops a flight's cached availability after a hold or release.
func (c *AvailabilityCache) Invalidate(ctx context.Context, flightID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, availabilityKey(flightID)).Err(); err != nil {
		c.logger.WithError(err).WithField("flight_id", flightID).Warn("Availability cache invalidation failed")
	}
}

// Close releases the Redis connection.
func (c *AvailabilityCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
