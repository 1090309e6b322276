package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionVoting    SessionStatus = "voting"
	SessionExecuting SessionStatus = "executing"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// ResetSession is one voting round for a device's counter reset.
// At most one session per device is in the voting state at a time;
// a session that never completes is ignored once expires_at passes.
type ResetSession struct {
	ID            uuid.UUID     `json:"id"`
	DeviceID      string        `json:"device_id"`
	Status        SessionStatus `json:"status"`
	RequiredVotes int           `json:"required_votes"`
	VotesReceived int           `json:"votes_received"`
	ExpiresAt     time.Time     `json:"expires_at"`
	CreatedAt     time.Time     `json:"created_at"`
	ExecutedAt    *time.Time    `json:"reset_executed_at,omitempty"`
}
