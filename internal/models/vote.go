package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote records one user's consent to reset a device's energy counters.
// The ledger enforces at most one vote per (device, user) pair.
type Vote struct {
	ID       uuid.UUID `json:"id"`
	DeviceID string    `json:"device_id"`
	UserID   uuid.UUID `json:"user_id"`
	VotedAt  time.Time `json:"voted_at"`

	// ProfileName is filled in from the voter's profile when listing
	// votes for the dashboard. Not stored on the ledger row.
	ProfileName string `json:"profile_name,omitempty"`
}
