package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// RedisOdometer хранит одометр в Redis под ключом odometer
type RedisOdometer struct {
	client *redis.Client
	logger *utils.Logger
	key    string
}

// NewRedisOdometer создает одометр в Redis
func NewRedisOdometer(cfg *config.RedisConfig, logger *utils.Logger) (*RedisOdometer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Парсим Redis URL
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Дополнительные настройки
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return &RedisOdometer{
		client: redis.NewClient(opt),
		logger: logger.WithField("component", "redis_odometer"),
		key:    OdometerKey,
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisOdometer) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisOdometer) Close() error {
	return r.client.Close()
}

// Load читает значение одометра; отсутствующий ключ дает 0
func (r *RedisOdometer) Load(ctx context.Context) (float64, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("odometer_get").Observe(time.Since(start).Seconds())
	}()

	meters, err := r.client.Get(ctx, r.key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get odometer: %w", err)
	}
	metrics.OdometerMeters.Set(meters)
	return meters, nil
}

// Add атомарно увеличивает одометр через INCRBYFLOAT
func (r *RedisOdometer) Add(ctx context.Context, meters float64) (float64, error) {
	if meters < 0 || math.IsNaN(meters) {
		return 0, fmt.Errorf("%w: %f", ErrNegativeDistance, meters)
	}

	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("odometer_incr").Observe(time.Since(start).Seconds())
	}()

	total, err := r.client.IncrByFloat(ctx, r.key, meters).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment odometer: %w", err)
	}

	metrics.OdometerMeters.Set(total)
	r.logger.WithField("added", meters).WithField("total", total).Debug("Odometer updated")
	return total, nil
}
