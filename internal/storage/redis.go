package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Azurakun/AnTiMa-sub000/internal/config"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

const (
	diceLockKeyPrefix = "dice_lock:"
	diceLockTTL       = 30 * time.Minute
	sessionCacheKey   = "session_cache:"
	sessionCacheTTL   = 10 * time.Minute
)

// RedisStore holds the hot per-session state: locked dice results for
// reroll and a session document cache.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// DiceLock

// Lock records a dice result so a reroll replays the original outcome.
func (s *RedisStore) Lock(ctx context.Context, sessionID string, result string) error {
	return s.client.Set(ctx, diceLockKeyPrefix+sessionID, result, diceLockTTL).Err()
}

func (s *RedisStore) Locked(ctx context.Context, sessionID string) (string, error) {
	result, err := s.client.Get(ctx, diceLockKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return result, err
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, diceLockKeyPrefix+sessionID).Err()
}

// Session cache

// CacheSession stores a session document for fast resume without
// re-reading the backing store.
func (s *RedisStore) CacheSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, sessionCacheKey+session.ID, data, sessionCacheTTL).Err()
}

func (s *RedisStore) CachedSession(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionCacheKey+sessionID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal cached session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) InvalidateSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionCacheKey+sessionID).Err()
}
