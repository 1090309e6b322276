package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/prudhvinik1/wattsync/internal/repositories"
	"github.com/prudhvinik1/wattsync/internal/storage"
	"github.com/rs/zerolog"
)

var ErrInvalidStatus = errors.New("invalid status value")

// Timestamps at or above this are taken as epoch milliseconds; below,
// epoch seconds. Meters report whichever their SDK hands them.
const millisThreshold = 10_000_000_000

// FirmwareStore is the slice of the artifact store the OTA service
// needs; satisfied by storage.FirmwareStore.
type FirmwareStore interface {
	Upload(ctx context.Context, deviceID, filename string, r io.Reader, size int64) (*models.FirmwareArtifact, error)
	Latest(ctx context.Context, deviceID string) (*models.FirmwareArtifact, error)
	DownloadURL(ctx context.Context, artifact *models.FirmwareArtifact) (string, error)
}

// StatusPublisher fans a stored report out to progress watchers.
type StatusPublisher interface {
	Publish(ctx context.Context, record *models.OTAStatusRecord) error
}

// OTAService handles firmware distribution: uploads from the
// dashboard, update negotiation with the meter, and the meter's
// progress reports.
type OTAService struct {
	store     FirmwareStore
	status    repositories.OTAStatusRepository
	presence  repositories.PresenceRepository
	publisher StatusPublisher
	log       zerolog.Logger
	now       func() time.Time
}

type UpdateInfo struct {
	HasUpdate       bool   `json:"has_update"`
	FirmwareURL     string `json:"firmware_url,omitempty"`
	Filename        string `json:"filename,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	Message         string `json:"message,omitempty"`
}

// StatusReport is a raw progress report as received from the meter.
// Timestamp stays a json.Number so an unparseable value degrades to
// receipt time instead of failing the report.
type StatusReport struct {
	DeviceID        string      `json:"device_id"`
	Status          string      `json:"status"`
	Progress        float64     `json:"progress"`
	Message         string      `json:"message"`
	Timestamp       json.Number `json:"timestamp"`
	FirmwareVersion string      `json:"firmware_version"`
}

func NewOTAService(
	store FirmwareStore,
	status repositories.OTAStatusRepository,
	presence repositories.PresenceRepository,
	publisher StatusPublisher,
	log zerolog.Logger,
) *OTAService {
	return &OTAService{
		store:     store,
		status:    status,
		presence:  presence,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// UploadFirmware stores a new build for the device. Version tags come
// from the upload clock, so re-uploading identical bytes still forces
// a redownload on the next poll.
func (s *OTAService) UploadFirmware(ctx context.Context, deviceID, filename string, r io.Reader, size int64) (*models.FirmwareArtifact, string, error) {
	artifact, err := s.store.Upload(ctx, deviceID, filename, r, size)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store firmware: %w", err)
	}

	url, err := s.store.DownloadURL(ctx, artifact)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build firmware URL: %w", err)
	}

	s.log.Info().Str("device_id", deviceID).Str("version", artifact.Version).
		Int64("size", artifact.Size).Msg("firmware uploaded")
	return artifact, url, nil
}

// CheckForUpdate answers a meter's poll. The comparison is plain
// string equality on the version tag: any stored tag that differs from
// what the meter runs counts as an update, in either direction.
func (s *OTAService) CheckForUpdate(ctx context.Context, deviceID, currentVersion string) (*UpdateInfo, error) {
	artifact, err := s.store.Latest(ctx, deviceID)
	if errors.Is(err, storage.ErrNoArtifact) {
		return &UpdateInfo{HasUpdate: false, Message: "No firmware updates available"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up firmware: %w", err)
	}

	if currentVersion != "" && currentVersion == artifact.Version {
		return &UpdateInfo{
			HasUpdate: false,
			Message:   "Device already has the latest firmware version",
		}, nil
	}

	url, err := s.store.DownloadURL(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to build firmware URL: %w", err)
	}

	s.log.Info().Str("device_id", deviceID).Str("version", artifact.Version).
		Str("reported_version", currentVersion).Msg("firmware update offered")
	return &UpdateInfo{
		HasUpdate:       true,
		FirmwareURL:     url,
		Filename:        artifact.Filename,
		FirmwareVersion: artifact.Version,
		FileSize:        artifact.Size,
	}, nil
}

// ReportStatus validates and stores a progress report, refreshes the
// device's presence, and publishes the event to watchers. The stored
// record is a latest-wins projection; an out-of-order report simply
// becomes the new truth.
func (s *OTAService) ReportStatus(ctx context.Context, report *StatusReport) (*models.OTAStatusRecord, error) {
	if report.DeviceID == "" {
		return nil, errors.New("device_id is required")
	}

	status := models.OTAStatus(report.Status)
	if !models.ValidOTAStatus(status) {
		return nil, ErrInvalidStatus
	}

	record := &models.OTAStatusRecord{
		DeviceID:        report.DeviceID,
		Status:          status,
		Progress:        clampProgress(report.Progress),
		Message:         report.Message,
		FirmwareVersion: report.FirmwareVersion,
		Timestamp:       s.normalizeTimestamp(report.Timestamp),
	}

	if err := s.status.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store ota status: %w", err)
	}

	// Any report, heartbeat included, proves the meter is reachable.
	if err := s.presence.Touch(ctx, record.DeviceID); err != nil {
		s.log.Warn().Err(err).Str("device_id", record.DeviceID).Msg("failed to refresh presence")
	}

	if err := s.publisher.Publish(ctx, record); err != nil {
		s.log.Warn().Err(err).Str("device_id", record.DeviceID).Msg("failed to publish status event")
	}

	if status == models.OTAFailed {
		s.log.Error().Str("device_id", record.DeviceID).Str("message", record.Message).
			Msg("device reported firmware update failure")
	}
	return record, nil
}

// LatestStatus returns the stored projection for a device, or
// repositories.ErrNotFound when it has never reported.
func (s *OTAService) LatestStatus(ctx context.Context, deviceID string) (*models.OTAStatusRecord, error) {
	return s.status.Get(ctx, deviceID)
}

func clampProgress(p float64) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

func (s *OTAService) normalizeTimestamp(n json.Number) time.Time {
	if n.String() == "" {
		return s.now()
	}
	epoch, err := n.Int64()
	if err != nil {
		if f, ferr := n.Float64(); ferr == nil {
			epoch = int64(f)
		} else {
			return s.now()
		}
	}
	if epoch <= 0 {
		return s.now()
	}
	if epoch < millisThreshold {
		return time.Unix(epoch, 0)
	}
	return time.UnixMilli(epoch)
}
