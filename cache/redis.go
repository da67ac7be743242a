// Package cache – короткоживущий кэш сводки /stats в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statsKey = "mengundang:internal:stats"

// StatsCache; nil-значение работает как кэш, в котором всегда промах
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// ConnectRedis подключается и проверяет соединение
func ConnectRedis(ctx context.Context, addr, password string, ttl time.Duration) (*StatsCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	logging.Named("cache").Info("🧠 Redis подключён", zap.String("addr", addr))
	return NewStatsCache(rdb, ttl), nil
}

func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

// Get возвращает (nil, nil) при промахе
func (c *StatsCache) Get(ctx context.Context) (*models.Stats, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := c.rdb.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st models.Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *StatsCache) Set(ctx context.Context, st *models.Stats) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey, raw, c.ttl).Err()
}

// Invalidate сбрасывает сводку после изменений (сверка, выплата)
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, statsKey).Err()
}

func (c *StatsCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
