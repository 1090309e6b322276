package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/wattsync/internal/models"
)

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
	List(ctx context.Context) ([]*models.Device, error)
}

type VoteRepository interface {
	// Cast inserts the vote and bumps the session's votes_received in
	// the same transaction, returning the updated count.
	Cast(ctx context.Context, vote *models.Vote, sessionID uuid.UUID) (int, error)
	CountByDevice(ctx context.Context, deviceID string) (int, error)
	ListByDevice(ctx context.Context, deviceID string) ([]*models.Vote, error)
	DeleteByDevice(ctx context.Context, deviceID string) error
}

type ResetSessionRepository interface {
	Create(ctx context.Context, session *models.ResetSession) error
	GetActive(ctx context.Context, deviceID string) (*models.ResetSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ResetSession, error)
	// MarkExecuting flips a voting session to executing and stamps
	// reset_executed_at. Returns false if the session was no longer in
	// the voting state, so the quorum event fires at most once.
	MarkExecuting(ctx context.Context, id uuid.UUID) (bool, error)
	// ConsumeExecuting completes the executing session for a device,
	// if any. Returns ErrNotFound when no reset is pending.
	ConsumeExecuting(ctx context.Context, deviceID string) (*models.ResetSession, error)
}

type ProfileRepository interface {
	GetNames(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

type OTAStatusRepository interface {
	Upsert(ctx context.Context, record *models.OTAStatusRecord) error
	Get(ctx context.Context, deviceID string) (*models.OTAStatusRecord, error)
	Delete(ctx context.Context, deviceID string) error
}

type PresenceRepository interface {
	Touch(ctx context.Context, deviceID string) error
	Online(ctx context.Context, deviceID string) (bool, time.Time, error)
	OnlineSet(ctx context.Context, deviceIDs []string) (map[string]bool, error)
}
