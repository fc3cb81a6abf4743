package db

import (
  "context"
  "fmt"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/kaar-org/kaar-backend/internal/logger"
)

// NewRedisClient connects and pings. Callers treat an error as "run without redis".
func NewRedisClient(log *logger.Logger, address, password string) (*redis.Client, error) {
  clientLog := log.With("component", "RedisClient")
  rdb := redis.NewClient(&redis.Options{
    Addr:     address,
    Password: password,
    DB:       0,
  })

  ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
  defer cancel()
  if err := rdb.Ping(ctx).Err(); err != nil {
    _ = rdb.Close()
    return nil, fmt.Errorf("redis ping failed: %w", err)
  }
  clientLog.Info("Connected to redis", "address", address)
  return rdb, nil
}
