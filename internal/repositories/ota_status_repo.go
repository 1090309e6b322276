package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	otaStatusKeyPrefix = "ota:status:"
	// Records are a current-status projection, not a log. The TTL is
	// the cleanup policy: a device silent this long has no rollout
	// worth showing anyone.
	otaStatusTTL = 24 * time.Hour
)

type RedisOTAStatusRepository struct {
	client *redis.Client
}

func NewRedisOTAStatusRepository(client *redis.Client) *RedisOTAStatusRepository {
	return &RedisOTAStatusRepository{client: client}
}

// Upsert overwrites the device's current-status record. Last write
// wins; there is no ordering guarantee beyond arrival order here.
func (r *RedisOTAStatusRepository) Upsert(ctx context.Context, record *models.OTAStatusRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ota status: %w", err)
	}

	key := otaStatusKey(record.DeviceID)
	if err := r.client.Set(ctx, key, data, otaStatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set ota status: %w", err)
	}
	return nil
}

func (r *RedisOTAStatusRepository) Get(ctx context.Context, deviceID string) (*models.OTAStatusRecord, error) {
	data, err := r.client.Get(ctx, otaStatusKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ota status: %w", err)
	}

	var record models.OTAStatusRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ota status: %w", err)
	}
	return &record, nil
}

func (r *RedisOTAStatusRepository) Delete(ctx context.Context, deviceID string) error {
	if err := r.client.Del(ctx, otaStatusKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete ota status: %w", err)
	}
	return nil
}

func otaStatusKey(deviceID string) string {
	return otaStatusKeyPrefix + deviceID
}
