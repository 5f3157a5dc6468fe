package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

const sessionTTL = 30 * 24 * time.Hour

// RedisSessionCache remembers the resolved session per device token so a
// returning user lands straight in their inspection list.
type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

type cachedSession struct {
	UserID     uuid.UUID `json:"user_id"`
	CategoryID uuid.UUID `json:"category_id"`
	Phone      string    `json:"phone"`
}

func sessionKey(deviceToken string) string {
	return "session:" + deviceToken
}

func (c *RedisSessionCache) Remember(ctx context.Context, deviceToken string, s domain.Session) error {
	data, err := json.Marshal(cachedSession{UserID: s.UserID, CategoryID: s.CategoryID, Phone: s.Phone})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.client.Set(ctx, sessionKey(deviceToken), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Recall(ctx context.Context, deviceToken string) (*domain.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(deviceToken)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}
	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached session: %w", err)
	}
	return &domain.Session{UserID: cached.UserID, CategoryID: cached.CategoryID, Phone: cached.Phone}, nil
}

func (c *RedisSessionCache) Forget(ctx context.Context, deviceToken string) error {
	if err := c.client.Del(ctx, sessionKey(deviceToken)).Err(); err != nil {
		return fmt.Errorf("failed to drop cached session: %w", err)
	}
	return nil
}
