package models

import (
	"time"
)

const (
	MinChannelCount = 1
	MaxChannelCount = 16
)

// Device is a registered energy meter. The ID is the opaque hardware
// identifier the meter reports, not something we generate.
type Device struct {
	ID           string     `json:"device_id"`
	Name         string     `json:"device_name"`
	ChannelCount int        `json:"channel_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}
