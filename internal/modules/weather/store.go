// README: Current weather per city, reported by operations and kept in Redis until it goes stale.
package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tawsil/internal/logger"
	"tawsil/internal/types"
)

const (
	keyPrefix  = "weather:%s"
	DefaultTTL = 3 * time.Hour
)

// Store answers the dispatcher's weather lookups. A city nobody reported
// on, or whose report expired, is clear.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
	log   logger.ILogger
}

func NewStore(redis *redis.Client, ttl time.Duration, log logger.ILogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: redis, ttl: ttl, log: logger.Component(log, "weather")}
}

// Set records w as the weather of city until the report goes stale.
func (s *Store) Set(ctx context.Context, city string, w types.Weather) error {
	city = normalize(city)
	if city == "" {
		return types.Invalid("city", "is required")
	}
	if !w.Valid() {
		return types.Invalid("weather", "unknown weather %q", w)
	}
	if err := s.redis.Set(ctx, key(city), string(w), s.ttl).Err(); err != nil {
		return fmt.Errorf("set weather %s: %w", city, err)
	}
	s.log.Info("weather reported", logger.String("city", city), logger.String("weather", string(w)))
	return nil
}

func (s *Store) Current(ctx context.Context, city string) (types.Weather, error) {
	v, err := s.redis.Get(ctx, key(normalize(city))).Result()
	if errors.Is(err, redis.Nil) {
		return types.WeatherClear, nil
	}
	if err != nil {
		return "", fmt.Errorf("get weather %s: %w", city, err)
	}
	return types.Weather(v), nil
}

func normalize(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func key(city string) string {
	return fmt.Sprintf(keyPrefix, city)
}
