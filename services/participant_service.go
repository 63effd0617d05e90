package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ParticipantService is the per-(challenge, user) contributed-minutes ledger.
// Rows are monotonic: minutes only ever grow, and removing a participant never
// subtracts their history from the owning challenge's total.
type ParticipantService struct {
	db *pgxpool.Pool
}

func NewParticipantService(db *pgxpool.Pool) *ParticipantService {
	return &ParticipantService{db: db}
}

// Add inserts a participant row with zero contribution. Returns false if the
// pair already exists. Two concurrent invite acceptances race here, the loser
// resolves through the primary key conflict instead of an error.
func (s *ParticipantService) Add(ctx context.Context, challengeID, userID uuid.UUID) (bool, error) {
	query := `
	INSERT INTO challenge_participants (challenge_id, user_id, contributed_minutes, joined_at)
	VALUES ($1, $2, 0, $3)
	ON CONFLICT (challenge_id, user_id) DO NOTHING
	`

	tag, err := s.db.Exec(ctx, query, challengeID, userID, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to add participant: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Remove deletes the participant row without touching the challenge's
// aggregate progress. Contribution history is immutable even after departure.
func (s *ParticipantService) Remove(ctx context.Context, challengeID, userID uuid.UUID) (bool, error) {
	query := `
	DELETE FROM challenge_participants
	WHERE challenge_id = $1 AND user_id = $2
	`

	tag, err := s.db.Exec(ctx, query, challengeID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *ParticipantService) IsParticipant(ctx context.Context, challengeID, userID uuid.UUID) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM challenge_participants
		WHERE challenge_id = $1 AND user_id = $2
	)
	`

	var exists bool
	if err := s.db.QueryRow(ctx, query, challengeID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}

	return exists, nil
}

// ContributedMinutes returns 0 when no row exists for the pair.
func (s *ParticipantService) ContributedMinutes(ctx context.Context, challengeID, userID uuid.UUID) (int, error) {
	query := `
	SELECT COALESCE(
		(SELECT contributed_minutes FROM challenge_participants
		 WHERE challenge_id = $1 AND user_id = $2), 0)
	`

	var minutes int
	if err := s.db.QueryRow(ctx, query, challengeID, userID).Scan(&minutes); err != nil {
		return 0, fmt.Errorf("failed to get contributed minutes: %w", err)
	}

	return minutes, nil
}

// IncrementContribution atomically adds deltaMinutes to the pair's counter.
// The increment happens inside the UPDATE expression so concurrent workouts
// from the same user serialize on the row instead of losing updates. Returns
// false if the pair does not exist.
func (s *ParticipantService) IncrementContribution(ctx context.Context, challengeID, userID uuid.UUID, deltaMinutes int) (bool, error) {
	query := `
	UPDATE challenge_participants
	SET contributed_minutes = contributed_minutes + $3
	WHERE challenge_id = $1 AND user_id = $2
	`

	tag, err := s.db.Exec(ctx, query, challengeID, userID, deltaMinutes)
	if err != nil {
		return false, fmt.Errorf("failed to increment contribution: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
