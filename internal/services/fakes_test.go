package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/prudhvinik1/wattsync/internal/repositories"
	"github.com/prudhvinik1/wattsync/internal/storage"
)

// In-memory fakes mirroring the repository contracts, including the
// unique-vote rejection and the guarded status transitions.

type fakeDeviceRepo struct {
	devices map[string]*models.Device
}

func newFakeDeviceRepo(devices ...*models.Device) *fakeDeviceRepo {
	repo := &fakeDeviceRepo{devices: make(map[string]*models.Device)}
	for _, d := range devices {
		repo.devices[d.ID] = d
	}
	return repo
}

func (r *fakeDeviceRepo) Create(_ context.Context, device *models.Device) error {
	r.devices[device.ID] = device
	return nil
}

func (r *fakeDeviceRepo) GetByID(_ context.Context, id string) (*models.Device, error) {
	device, ok := r.devices[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return device, nil
}

func (r *fakeDeviceRepo) List(_ context.Context) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.ResetSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*models.ResetSession)}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *models.ResetSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetActive(_ context.Context, deviceID string) (*models.ResetSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.DeviceID == deviceID && s.Status == models.SessionVoting && s.ExpiresAt.After(time.Now()) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ResetSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) MarkExecuting(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != models.SessionVoting {
		return false, nil
	}
	now := time.Now()
	s.Status = models.SessionExecuting
	s.ExecutedAt = &now
	return true, nil
}

func (r *fakeSessionRepo) ConsumeExecuting(_ context.Context, deviceID string) (*models.ResetSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.DeviceID == deviceID && s.Status == models.SessionExecuting {
			s.Status = models.SessionCompleted
			copied := *s
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type fakeVoteRepo struct {
	mu       sync.Mutex
	votes    map[string]*models.Vote // key: deviceID + "|" + userID
	sessions *fakeSessionRepo
}

func newFakeVoteRepo(sessions *fakeSessionRepo) *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[string]*models.Vote), sessions: sessions}
}

func voteKey(deviceID string, userID uuid.UUID) string {
	return deviceID + "|" + userID.String()
}

func (r *fakeVoteRepo) Cast(_ context.Context, vote *models.Vote, sessionID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := voteKey(vote.DeviceID, vote.UserID)
	if _, exists := r.votes[key]; exists {
		return 0, repositories.ErrAlreadyVoted
	}
	vote.ID = uuid.New()
	vote.VotedAt = time.Now()
	copied := *vote
	r.votes[key] = &copied

	r.sessions.mu.Lock()
	defer r.sessions.mu.Unlock()
	session, ok := r.sessions.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("session %s not found", sessionID)
	}
	session.VotesReceived++
	return session.VotesReceived, nil
}

func (r *fakeVoteRepo) CountByDevice(_ context.Context, deviceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, v := range r.votes {
		if v.DeviceID == deviceID {
			count++
		}
	}
	return count, nil
}

func (r *fakeVoteRepo) ListByDevice(_ context.Context, deviceID string) ([]*models.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Vote
	for _, v := range r.votes {
		if v.DeviceID == deviceID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeVoteRepo) DeleteByDevice(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, v := range r.votes {
		if v.DeviceID == deviceID {
			delete(r.votes, key)
		}
	}
	return nil
}

type fakeProfileRepo struct {
	names map[uuid.UUID]string
}

func (r *fakeProfileRepo) GetNames(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	for _, id := range userIDs {
		if name, ok := r.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type fakeStatusRepo struct {
	mu      sync.Mutex
	records map[string]*models.OTAStatusRecord
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{records: make(map[string]*models.OTAStatusRecord)}
}

func (r *fakeStatusRepo) Upsert(_ context.Context, record *models.OTAStatusRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *record
	r.records[record.DeviceID] = &copied
	return nil
}

func (r *fakeStatusRepo) Get(_ context.Context, deviceID string) (*models.OTAStatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[deviceID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *fakeStatusRepo) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, deviceID)
	return nil
}

type fakePresenceRepo struct {
	mu      sync.Mutex
	touched map[string]int
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{touched: make(map[string]int)}
}

func (r *fakePresenceRepo) Touch(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[deviceID]++
	return nil
}

func (r *fakePresenceRepo) Online(_ context.Context, deviceID string) (bool, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touched[deviceID] > 0, time.Time{}, nil
}

func (r *fakePresenceRepo) OnlineSet(_ context.Context, deviceIDs []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range deviceIDs {
		out[id] = r.touched[id] > 0
	}
	return out, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*models.OTAStatusRecord
}

func (p *fakePublisher) Publish(_ context.Context, record *models.OTAStatusRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := *record
	p.published = append(p.published, &copied)
	return nil
}

// fakeFirmwareStore mimics single-artifact retention with an injected
// clock so back-to-back uploads still get distinct version tags.
type fakeFirmwareStore struct {
	mu       sync.Mutex
	clock    time.Time
	artifact map[string]*models.FirmwareArtifact
}

func newFakeFirmwareStore() *fakeFirmwareStore {
	return &fakeFirmwareStore{
		clock:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		artifact: make(map[string]*models.FirmwareArtifact),
	}
}

func (s *fakeFirmwareStore) Upload(_ context.Context, deviceID, filename string, r io.Reader, size int64) (*models.FirmwareArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(time.Second)
	version := storage.NewVersionTag(s.clock)
	artifact := &models.FirmwareArtifact{
		DeviceID:   deviceID,
		Version:    version,
		Filename:   version + "_" + filename,
		Key:        storage.ObjectKey(deviceID, version, filename),
		Size:       size,
		UploadedAt: s.clock,
	}
	s.artifact[deviceID] = artifact
	return artifact, nil
}

func (s *fakeFirmwareStore) Latest(_ context.Context, deviceID string) (*models.FirmwareArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifact[deviceID]
	if !ok {
		return nil, storage.ErrNoArtifact
	}
	return artifact, nil
}

func (s *fakeFirmwareStore) DownloadURL(_ context.Context, artifact *models.FirmwareArtifact) (string, error) {
	return "https://firmware.test/" + artifact.Key, nil
}
