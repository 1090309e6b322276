package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/wattsync/internal/models"
)

type PostgresResetSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresResetSessionRepository(pool *pgxpool.Pool) *PostgresResetSessionRepository {
	return &PostgresResetSessionRepository{pool: pool}
}

func (r *PostgresResetSessionRepository) Create(ctx context.Context, session *models.ResetSession) error {
	query := `INSERT INTO energy_reset_sessions (device_id, status, required_votes, votes_received, expires_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		session.DeviceID,
		session.Status,
		session.RequiredVotes,
		session.VotesReceived,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create reset session: %w", err)
	}
	return nil
}

// GetActive returns the device's voting session that has not passed
// its TTL. Expired sessions are filtered here rather than swept by a
// background job; they simply stop matching.
func (r *PostgresResetSessionRepository) GetActive(ctx context.Context, deviceID string) (*models.ResetSession, error) {
	query := `SELECT id, device_id, status, required_votes, votes_received, expires_at, created_at, reset_executed_at
	          FROM energy_reset_sessions
	          WHERE device_id = $1 AND status = $2 AND expires_at > NOW()
	          ORDER BY created_at DESC
	          LIMIT 1`

	return r.scanOne(r.pool.QueryRow(ctx, query, deviceID, models.SessionVoting))
}

func (r *PostgresResetSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResetSession, error) {
	query := `SELECT id, device_id, status, required_votes, votes_received, expires_at, created_at, reset_executed_at
	          FROM energy_reset_sessions
	          WHERE id = $1`

	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresResetSessionRepository) MarkExecuting(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE energy_reset_sessions
	          SET status = $1, reset_executed_at = NOW()
	          WHERE id = $2 AND status = $3`

	result, err := r.pool.Exec(ctx, query, models.SessionExecuting, id, models.SessionVoting)
	if err != nil {
		return false, fmt.Errorf("failed to mark session executing: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *PostgresResetSessionRepository) ConsumeExecuting(ctx context.Context, deviceID string) (*models.ResetSession, error) {
	query := `UPDATE energy_reset_sessions
	          SET status = $1
	          WHERE device_id = $2 AND status = $3
	          RETURNING id, device_id, status, required_votes, votes_received, expires_at, created_at, reset_executed_at`

	return r.scanOne(r.pool.QueryRow(ctx, query, models.SessionCompleted, deviceID, models.SessionExecuting))
}

func (r *PostgresResetSessionRepository) scanOne(row pgx.Row) (*models.ResetSession, error) {
	var session models.ResetSession
	err := row.Scan(
		&session.ID,
		&session.DeviceID,
		&session.Status,
		&session.RequiredVotes,
		&session.VotesReceived,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.ExecutedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reset session: %w", err)
	}
	return &session, nil
}
