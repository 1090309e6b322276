package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "device:online:"
	// A meter reports at least every few seconds while healthy; 15s
	// of silence and the dashboard shows it offline.
	presenceTTL = 15 * time.Second
)

type presenceRecord struct {
	LastSeen time.Time `json:"last_seen"`
}

// RedisPresenceRepository tracks which meters have reported recently.
// Every OTA report or heartbeat refreshes the key; expiry is the
// offline signal, no sweep needed.
type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

func (r *RedisPresenceRepository) Touch(ctx context.Context, deviceID string) error {
	data, err := json.Marshal(presenceRecord{LastSeen: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	if err := r.client.Set(ctx, presenceKey(deviceID), data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) Online(ctx context.Context, deviceID string) (bool, time.Time, error) {
	data, err := r.client.Get(ctx, presenceKey(deviceID)).Result()
	if err == redis.Nil {
		// No key means the device went quiet and the TTL lapsed.
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to get presence: %w", err)
	}

	var record presenceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return false, time.Time{}, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return true, record.LastSeen, nil
}

// OnlineSet checks many devices in one round trip via MGET.
func (r *RedisPresenceRepository) OnlineSet(ctx context.Context, deviceIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return online, nil
	}

	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = presenceKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	for i, result := range results {
		online[deviceIDs[i]] = result != nil
	}
	return online, nil
}

func presenceKey(deviceID string) string {
	return presenceKeyPrefix + deviceID
}
