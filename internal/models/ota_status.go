package models

import (
	"time"
)

type OTAStatus string

const (
	OTAStarting    OTAStatus = "starting"
	OTADownloading OTAStatus = "downloading"
	OTAInstalling  OTAStatus = "installing"
	OTAComplete    OTAStatus = "complete"
	OTAFailed      OTAStatus = "failed"
	OTANoUpdate    OTAStatus = "no_update"
	OTAHeartbeat   OTAStatus = "heartbeat"
)

// ValidOTAStatus reports whether s is one of the statuses a device is
// allowed to report. Anything else is rejected, never coerced.
func ValidOTAStatus(s OTAStatus) bool {
	switch s {
	case OTAStarting, OTADownloading, OTAInstalling, OTAComplete, OTAFailed, OTANoUpdate, OTAHeartbeat:
		return true
	}
	return false
}

// Active reports whether s is a mid-rollout status, the kind a freshly
// opened dashboard should replay into its progress monitor.
func (s OTAStatus) Active() bool {
	return s == OTAStarting || s == OTADownloading || s == OTAInstalling
}

// OTAStatusRecord is the latest-wins projection of a device's rollout
// progress. One record per device, overwritten on every report.
type OTAStatusRecord struct {
	DeviceID        string    `json:"device_id"`
	Status          OTAStatus `json:"status"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
