package services

import (
  "context"
  "crypto/sha256"
  "encoding/hex"
  "fmt"
  "sync"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/kaar-org/kaar-backend/internal/logger"
)

// TokenBlacklist remembers revoked tokens until they would have expired anyway.
// Add reports false when the token was already listed.
type TokenBlacklist interface {
  Add(ctx context.Context, token string, ttl time.Duration) (bool, error)
  Contains(ctx context.Context, token string) (bool, error)
}

//----------------------------------------------------------------------------------------------------------------------
// Redis
//----------------------------------------------------------------------------------------------------------------------

type redisBlacklist struct {
  log     *logger.Logger
  client  redis.Cmdable
  prefix  string
}

func NewRedisBlacklist(log *logger.Logger, client redis.Cmdable) TokenBlacklist {
  return &redisBlacklist{
    log:    log.With("service", "RedisBlacklist"),
    client: client,
    prefix: "kaar:blacklist:",
  }
}

// Tokens are hashed so the key space never holds usable credentials.
func (rb *redisBlacklist) key(token string) string {
  sum := sha256.Sum256([]byte(token))
  return rb.prefix + hex.EncodeToString(sum[:])
}

func (rb *redisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) (bool, error) {
  if ttl <= 0 {
    rb.log.Debug("Token already expired, nothing to blacklist")
    return true, nil
  }
  added, err := rb.client.SetNX(ctx, rb.key(token), 1, ttl).Result()
  if err != nil {
    rb.log.Warn("Failed to blacklist token in redis", "error", err)
    return false, fmt.Errorf("failed to blacklist token: %w", err)
  }
  return added, nil
}

func (rb *redisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
  n, err := rb.client.Exists(ctx, rb.key(token)).Result()
  if err != nil {
    rb.log.Warn("Failed to check token blacklist in redis", "error", err)
    return false, fmt.Errorf("failed to check token blacklist: %w", err)
  }
  return n > 0, nil
}

//----------------------------------------------------------------------------------------------------------------------
// In-process fallback
//----------------------------------------------------------------------------------------------------------------------

type memoryBlacklist struct {
  mu      sync.Mutex
  entries map[string]time.Time
  now     func() time.Time
}

// NewMemoryBlacklist is used when redis is unavailable. Entries are dropped once
// their TTL passes, so growth is bounded by the number of live tokens.
func NewMemoryBlacklist() TokenBlacklist {
  return &memoryBlacklist{
    entries: make(map[string]time.Time),
    now:     time.Now,
  }
}

func (mb *memoryBlacklist) Add(ctx context.Context, token string, ttl time.Duration) (bool, error) {
  if ttl <= 0 {
    return true, nil
  }
  mb.mu.Lock()
  defer mb.mu.Unlock()
  now := mb.now()
  mb.sweepLocked(now)
  if _, listed := mb.entries[token]; listed {
    return false, nil
  }
  mb.entries[token] = now.Add(ttl)
  return true, nil
}

func (mb *memoryBlacklist) Contains(ctx context.Context, token string) (bool, error) {
  mb.mu.Lock()
  defer mb.mu.Unlock()
  expiresAt, ok := mb.entries[token]
  if !ok {
    return false, nil
  }
  if !mb.now().Before(expiresAt) {
    delete(mb.entries, token)
    return false, nil
  }
  return true, nil
}

func (mb *memoryBlacklist) sweepLocked(now time.Time) {
  for token, expiresAt := range mb.entries {
    if !now.Before(expiresAt) {
      delete(mb.entries, token)
    }
  }
}
