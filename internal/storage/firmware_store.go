package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/rs/zerolog"
)

// ErrNoArtifact is returned when a device has no stored firmware.
var ErrNoArtifact = errors.New("no firmware artifact for device")

const (
	firmwareContentType = "application/octet-stream"
	signedURLExpiry     = time.Hour
)

// FirmwareStore keeps at most one firmware binary per device in an
// S3-compatible bucket under firmware/{device_id}/{version}_{name}.
type FirmwareStore struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// NewFirmwareStore connects to MinIO and ensures the bucket exists.
func NewFirmwareStore(endpoint, accessKey, secretKey, bucket string, useSSL bool, log zerolog.Logger) (*FirmwareStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check firmware bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create firmware bucket: %w", err)
		}
	}

	return &FirmwareStore{client: client, bucket: bucket, log: log}, nil
}

// Upload stores a new firmware binary for the device, deleting any
// prior artifacts first so a poller is never served a stale build.
// The delete and the put are not one transaction; a concurrent update
// check can transiently see zero artifacts, which the device's next
// poll corrects.
func (s *FirmwareStore) Upload(ctx context.Context, deviceID, filename string, r io.Reader, size int64) (*models.FirmwareArtifact, error) {
	version := NewVersionTag(time.Now())
	key := ObjectKey(deviceID, version, filename)

	if err := s.removeAll(ctx, deviceID); err != nil {
		// Old artifacts are only a staleness hazard, not a reason to
		// refuse the new build.
		s.log.Warn().Err(err).Str("device_id", deviceID).Msg("cleanup of old firmware failed, continuing")
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: firmwareContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload firmware: %w", err)
	}

	return &models.FirmwareArtifact{
		DeviceID:   deviceID,
		Version:    version,
		Filename:   version + "_" + SafeFilename(filename),
		Key:        key,
		Size:       info.Size,
		UploadedAt: time.Now(),
	}, nil
}

// Latest returns the newest stored artifact for the device. With the
// single-artifact retention policy there is normally exactly one; if a
// racing upload leaves two, the higher version tag wins.
func (s *FirmwareStore) Latest(ctx context.Context, deviceID string) (*models.FirmwareArtifact, error) {
	prefix := "firmware/" + deviceID + "/"

	var objects []minio.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list firmware objects: %w", object.Err)
		}
		objects = append(objects, object)
	}

	if len(objects) == 0 {
		return nil, ErrNoArtifact
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key > objects[j].Key
	})
	latest := objects[0]

	version, _ := ParseObjectName(latest.Key)
	return &models.FirmwareArtifact{
		DeviceID:   deviceID,
		Version:    version,
		Filename:   latest.Key[len(prefix):],
		Key:        latest.Key,
		Size:       latest.Size,
		UploadedAt: latest.LastModified,
	}, nil
}

// DownloadURL returns a signed, time-limited URL for the artifact,
// falling back to the plain public URL when signing fails. The meter's
// HTTP client can follow either.
func (s *FirmwareStore) DownloadURL(ctx context.Context, artifact *models.FirmwareArtifact) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, artifact.Key, signedURLExpiry, nil)
	if err == nil {
		return signed.String(), nil
	}
	s.log.Warn().Err(err).Str("key", artifact.Key).Msg("presign failed, falling back to public URL")

	public := *s.client.EndpointURL()
	public.Path = "/" + s.bucket + "/" + artifact.Key
	return public.String(), nil
}

func (s *FirmwareStore) removeAll(ctx context.Context, deviceID string) error {
	prefix := "firmware/" + deviceID + "/"

	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return fmt.Errorf("failed to list old firmware: %w", object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove old firmware %s: %w", object.Key, err)
		}
	}
	return nil
}
