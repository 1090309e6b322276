package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/wattsync/internal/models"
	"github.com/prudhvinik1/wattsync/internal/repositories"
	"github.com/rs/zerolog"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAlreadyVoted is re-exported so handlers depend on one package.
	ErrAlreadyVoted = repositories.ErrAlreadyVoted
)

const resetCompletedMessage = "Energy counters have been reset successfully!"

// ResetVoteService coordinates the quorum vote that authorizes a
// device's energy-counter reset. Quorum equals the device's channel
// count: every tenant wired to the meter must consent.
type ResetVoteService struct {
	devices    repositories.DeviceRepository
	votes      repositories.VoteRepository
	sessions   repositories.ResetSessionRepository
	profiles   repositories.ProfileRepository
	sessionTTL time.Duration
	log        zerolog.Logger
}

type VoteResult struct {
	VotesReceived  int  `json:"votes_received"`
	RequiredVotes  int  `json:"required_votes"`
	ResetTriggered bool `json:"reset_triggered"`
}

type ResetStatus struct {
	Session       *models.ResetSession `json:"session"`
	Votes         []*models.Vote       `json:"votes"`
	VotesReceived int                  `json:"votes_received"`
	RequiredVotes int                  `json:"required_votes"`
}

type ResetCommand struct {
	Pending bool   `json:"reset_command"`
	Message string `json:"message,omitempty"`
}

func NewResetVoteService(
	devices repositories.DeviceRepository,
	votes repositories.VoteRepository,
	sessions repositories.ResetSessionRepository,
	profiles repositories.ProfileRepository,
	sessionTTL time.Duration,
	log zerolog.Logger,
) *ResetVoteService {
	return &ResetVoteService{
		devices:    devices,
		votes:      votes,
		sessions:   sessions,
		profiles:   profiles,
		sessionTTL: sessionTTL,
		log:        log,
	}
}

// CastVote records one user's consent. The first vote after a quiet
// period (or after the previous session expired) lazily opens a new
// session; the Nth distinct vote trips the quorum and arms the reset.
func (s *ResetVoteService) CastVote(ctx context.Context, deviceID string, userID uuid.UUID) (*VoteResult, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	session, err := s.sessions.GetActive(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		// Votes from a session that expired short of quorum would
		// otherwise trip the unique (device, user) guard and lock those
		// users out of every future cycle. A new session starts with an
		// empty ledger.
		if err := s.votes.DeleteByDevice(ctx, deviceID); err != nil {
			return nil, fmt.Errorf("failed to clear stale votes: %w", err)
		}
		session = &models.ResetSession{
			DeviceID:      deviceID,
			Status:        models.SessionVoting,
			RequiredVotes: device.ChannelCount,
			VotesReceived: 0,
			ExpiresAt:     time.Now().Add(s.sessionTTL),
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create reset session: %w", err)
		}
		s.log.Info().Str("device_id", deviceID).Int("required_votes", session.RequiredVotes).
			Msg("opened reset voting session")
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up reset session: %w", err)
	}

	vote := &models.Vote{DeviceID: deviceID, UserID: userID}
	received, err := s.votes.Cast(ctx, vote, session.ID)
	if errors.Is(err, repositories.ErrAlreadyVoted) {
		return nil, ErrAlreadyVoted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cast vote: %w", err)
	}

	triggered := false
	if received >= session.RequiredVotes {
		// The guarded status transition makes the quorum event fire at
		// most once even if a racing vote sees the same count.
		triggered, err = s.sessions.MarkExecuting(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to arm reset: %w", err)
		}
		if triggered {
			s.log.Info().Str("device_id", deviceID).Int("votes", received).
				Msg("quorum reached, energy reset armed")
		}
	}

	return &VoteResult{
		VotesReceived:  received,
		RequiredVotes:  session.RequiredVotes,
		ResetTriggered: triggered,
	}, nil
}

// Status reports the active session and the vote roll, annotated with
// voter display names where a profile exists. Side-effect free.
func (s *ResetVoteService) Status(ctx context.Context, deviceID string) (*ResetStatus, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	session, err := s.sessions.GetActive(ctx, deviceID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up reset session: %w", err)
	}

	votes, err := s.votes.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}

	if len(votes) > 0 {
		userIDs := make([]uuid.UUID, len(votes))
		for i, vote := range votes {
			userIDs[i] = vote.UserID
		}
		names, err := s.profiles.GetNames(ctx, userIDs)
		if err != nil {
			// Names are decoration on the vote roll, not part of it.
			s.log.Warn().Err(err).Str("device_id", deviceID).Msg("failed to annotate voter names")
		} else {
			for _, vote := range votes {
				vote.ProfileName = names[vote.UserID]
			}
		}
	}

	if votes == nil {
		votes = []*models.Vote{}
	}
	return &ResetStatus{
		Session:       session,
		Votes:         votes,
		VotesReceived: len(votes),
		RequiredVotes: device.ChannelCount,
	}, nil
}

// CheckAndConsumeResetCommand is polled by the meter. It hands out the
// reset signal at most once per armed session, completing the session
// and clearing the ledger so the next voting cycle starts clean.
func (s *ResetVoteService) CheckAndConsumeResetCommand(ctx context.Context, deviceID string) (*ResetCommand, error) {
	session, err := s.sessions.ConsumeExecuting(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &ResetCommand{Pending: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume reset command: %w", err)
	}

	if err := s.votes.DeleteByDevice(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("failed to clear votes after reset: %w", err)
	}

	s.log.Info().Str("device_id", deviceID).Stringer("session_id", session.ID).
		Msg("reset command acknowledged by device")
	return &ResetCommand{Pending: true, Message: resetCompletedMessage}, nil
}
