package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/wattsync/internal/models"
)

// ErrAlreadyVoted is returned when the ledger's unique (device, user)
// index rejects a second vote. The index is the sole duplicate guard.
var ErrAlreadyVoted = errors.New("user has already voted for this device")

const uniqueViolation = "23505"

type PostgresVoteRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresVoteRepository(pool *pgxpool.Pool) *PostgresVoteRepository {
	return &PostgresVoteRepository{pool: pool}
}

// Cast appends the vote and increments the session counter atomically.
// The counter update rides the same transaction as the insert, so two
// concurrent votes can never land on the same count.
func (r *PostgresVoteRepository) Cast(ctx context.Context, vote *models.Vote, sessionID uuid.UUID) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin vote transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `INSERT INTO energy_reset_votes (device_id, user_id)
	           VALUES ($1, $2)
	           RETURNING id, voted_at`

	err = tx.QueryRow(ctx, insert, vote.DeviceID, vote.UserID).Scan(&vote.ID, &vote.VotedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrAlreadyVoted
		}
		return 0, fmt.Errorf("failed to insert vote: %w", err)
	}

	update := `UPDATE energy_reset_sessions
	           SET votes_received = votes_received + 1
	           WHERE id = $1
	           RETURNING votes_received`

	var received int
	if err := tx.QueryRow(ctx, update, sessionID).Scan(&received); err != nil {
		return 0, fmt.Errorf("failed to update session vote count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit vote: %w", err)
	}
	return received, nil
}

func (r *PostgresVoteRepository) CountByDevice(ctx context.Context, deviceID string) (int, error) {
	query := `SELECT COUNT(*) FROM energy_reset_votes WHERE device_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, deviceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return count, nil
}

func (r *PostgresVoteRepository) ListByDevice(ctx context.Context, deviceID string) ([]*models.Vote, error) {
	query := `SELECT id, device_id, user_id, voted_at
	          FROM energy_reset_votes
	          WHERE device_id = $1
	          ORDER BY voted_at ASC`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		var vote models.Vote
		err := rows.Scan(
			&vote.ID,
			&vote.DeviceID,
			&vote.UserID,
			&vote.VotedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, &vote)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating votes: %w", err)
	}

	return votes, nil
}

func (r *PostgresVoteRepository) DeleteByDevice(ctx context.Context, deviceID string) error {
	query := `DELETE FROM energy_reset_votes WHERE device_id = $1`

	if _, err := r.pool.Exec(ctx, query, deviceID); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	return nil
}
