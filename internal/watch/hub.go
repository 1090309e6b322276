// Package watch turns OTA status writes into per-device event streams.
// Each watcher owns its own subscription and goroutine; there is no
// process-wide map of active watches to maintain or tear down.
package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const eventChannelPrefix = "ota:events:"

type Hub struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewHub(client *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{client: client, log: log}
}

// Publish fans a status report out to every watcher of the device.
// Delivery is best-effort; watchers that miss an event reconcile from
// the stored projection on their next start.
func (h *Hub) Publish(ctx context.Context, record *models.OTAStatusRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	if err := h.client.Publish(ctx, eventChannel(record.DeviceID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}
	return nil
}

// Watch subscribes to one device's status events. The returned channel
// closes when the context is cancelled or stop is called; stop is safe
// to call more than once.
func (h *Hub) Watch(ctx context.Context, deviceID string) (<-chan models.OTAStatusRecord, func()) {
	pubsub := h.client.Subscribe(ctx, eventChannel(deviceID))
	out := make(chan models.OTAStatusRecord)

	go func() {
		// The goroutine owns the subscription; closing it here means a
		// context cancel tears down exactly what stop does.
		defer pubsub.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var record models.OTAStatusRecord
				if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
					h.log.Warn().Err(err).Str("device_id", deviceID).Msg("dropping malformed status event")
					continue
				}
				select {
				case out <- record:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		// Closing the subscription closes pubsub.Channel(), which
		// unwinds the goroutine above.
		_ = pubsub.Close()
	}
	return out, stop
}

func eventChannel(deviceID string) string {
	return eventChannelPrefix + deviceID
}
