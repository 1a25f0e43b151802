package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Service interface {
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	SaveUnreadCount(ctx context.Context, userID string, count int64) error
	InvalidateUnreadCount(ctx context.Context, userID string) error
	SaveConnectionStats(ctx context.Context, stats *ConnectionStatsSnapshot) error
	GetConnectionStats(ctx context.Context) (*ConnectionStatsSnapshot, error)
}

// ConnectionStatsSnapshot is the periodically cached view of the session
// registry, consumed by dashboards that poll /socket-status.
type ConnectionStatsSnapshot struct {
	TotalSockets  int       `json:"totalSockets"`
	UniqueUsers   int       `json:"uniqueUsers"`
	Anonymous     int       `json:"anonymous"`
	ActiveUsers   []string  `json:"activeUsers,omitempty"`
	CapturedAt    time.Time `json:"capturedAt"`
	ServerVersion string    `json:"serverVersion,omitempty"`
}

type cacheService struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

func NewCacheService(client *redis.Client, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache}
}

func unreadCountKey(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}

// GetUnreadCount returns -1 with a nil error when the count is not cached.
func (c *cacheService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	key := unreadCountKey(userID)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return -1, nil // Not an error, just not found
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get unread count from cache")
		return -1, models.ErrRedisGet
	}

	count, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to parse cached unread count")
		return -1, models.ErrRedisGet
	}

	return count, nil
}

func (c *cacheService) SaveUnreadCount(ctx context.Context, userID string, count int64) error {
	key := unreadCountKey(userID)
	expiration := time.Duration(c.cfg.UnreadCountExpirationMinutes) * time.Minute

	err := c.client.Set(ctx, key, strconv.FormatInt(count, 10), expiration).Err()
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to cache unread count")
		return models.ErrRedisSet
	}

	logrus.WithFields(logrus.Fields{
		"key":   key,
		"count": count,
	}).Debug("Unread count cached successfully")
	return nil
}

func (c *cacheService) InvalidateUnreadCount(ctx context.Context, userID string) error {
	key := unreadCountKey(userID)

	err := c.client.Del(ctx, key).Err()
	if err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to invalidate unread count")
		return models.ErrRedisDelete
	}
	return nil
}

func (c *cacheService) SaveConnectionStats(ctx context.Context, stats *ConnectionStatsSnapshot) error {
	data, err := json.Marshal(stats)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal connection stats for cache")
		return models.ErrRedisSet
	}

	expiration := time.Duration(c.cfg.StatsExpirationSeconds) * time.Second
	err = c.client.Set(ctx, c.cfg.ConnectionStatsKey, data, expiration).Err()
	if err != nil {
		logrus.WithError(err).Error("Failed to cache connection stats")
		return models.ErrRedisSet
	}
	return nil
}

func (c *cacheService) GetConnectionStats(ctx context.Context) (*ConnectionStatsSnapshot, error) {
	data, err := c.client.Get(ctx, c.cfg.ConnectionStatsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.Debug("Connection stats not found in cache")
			return nil, nil // Not an error, just not found
		}
		logrus.WithError(err).Error("Failed to get connection stats from cache")
		return nil, models.ErrRedisGet
	}

	var stats ConnectionStatsSnapshot
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal connection stats from cache")
		return nil, models.ErrRedisGet
	}

	return &stats, nil
}
