// Package redis wraps the server's Redis connection and the keys it owns:
// the persisted user directory and a read-only mirror of the online set.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/config"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPrefix = "user:"
	onlineSetKey     = "presence:online"
	profileTTL       = 30 * 24 * time.Hour
)

var client *redis.Client
var ctx = context.Background()

// Connect initializes the Redis client
func Connect(cfg config.RedisConfig) error {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// SaveProfile upserts a user's directory record.
func SaveProfile(profile models.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := client.Set(ctx, profileKeyPrefix+profile.ID, data, profileTTL).Err(); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// GetProfile looks up a user's directory record. A missing record is
// returned as (nil, nil); callers render a bare identity in that case.
func GetProfile(userID string) (*models.UserProfile, error) {
	data, err := client.Get(ctx, profileKeyPrefix+userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	var profile models.UserProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &profile, nil
}

// MarkOnline adds identity to the mirrored online set. The mirror exists
// for out-of-process inspection only; routing always uses the in-memory
// registry.
func MarkOnline(identity string) {
	if client == nil {
		return
	}
	client.SAdd(ctx, onlineSetKey, identity)
}

// MarkOffline removes identity from the mirrored online set.
func MarkOffline(identity string) {
	if client == nil {
		return
	}
	client.SRem(ctx, onlineSetKey, identity)
}
