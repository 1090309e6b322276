package models

import (
	"time"
)

// FirmwareArtifact describes the single firmware binary retained for a
// device. Version is the sortable upload timestamp (YYYYMMDDHHMMSS),
// never derived from the binary's content.
type FirmwareArtifact struct {
	DeviceID   string    `json:"device_id"`
	Version    string    `json:"firmware_version"`
	Filename   string    `json:"filename"`
	Key        string    `json:"storage_path"`
	Size       int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
}
