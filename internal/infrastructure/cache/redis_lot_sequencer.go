// Package cache adaptadores sobre Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/pkg/config"
)

var _ billing.LotSequencer = (*RedisLotSequencer)(nil)

// DefaultLotKey clave del contador de lotes.
const DefaultLotKey = "nfe:lot:seq"

// RedisLotSequencer numeración de lotes compartida entre instancias (INCR atómico).
type RedisLotSequencer struct {
	client *redis.Client
	key    string
}

// NewRedisClient abre el cliente y verifica la conexión.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisLotSequencer key vacío usa DefaultLotKey.
func NewRedisLotSequencer(client *redis.Client, key string) *RedisLotSequencer {
	if key == "" {
		key = DefaultLotKey
	}
	return &RedisLotSequencer{client: client, key: key}
}

func (s *RedisLotSequencer) Next(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incrementar %s: %w", s.key, err)
	}
	return n, nil
}
