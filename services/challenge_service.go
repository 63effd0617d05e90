package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spottedAPI/internal/apperrors"
	"spottedAPI/internal/challenge"
	"spottedAPI/internal/user"
)

// userDirectory is the slice of the user service the engine resolves ids
// against. (nil, nil) means the id is unknown.
type userDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// ChallengeService owns challenge rows and their aggregate progress. The
// completion flag is one-way: once a challenge is completed no later update
// ever reverts it, though increments keep being recorded for history.
type ChallengeService struct {
	db    *pgxpool.Pool
	users userDirectory
}

func NewChallengeService(db *pgxpool.Pool, users userDirectory) *ChallengeService {
	return &ChallengeService{db: db, users: users}
}

// ProgressUpdate reports what a single UpdateProgress call did. JustCompleted
// is true only for the one caller whose update crossed the target, which makes
// it safe to key the completion award fan-out on it.
type ProgressUpdate struct {
	Updated       bool
	JustCompleted bool
	NewProgress   int
}

func validateChallenge(name string, startDate, endDate int64, targetDuration int) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Validation("challenge name cannot be empty")
	}
	if startDate >= endDate {
		return apperrors.Validation("end date must be after start date")
	}
	if targetDuration <= 0 {
		return apperrors.Validation("target duration must be positive")
	}
	return nil
}

// Create inserts the challenge and its creator's participant row in one
// transaction, then reads back the assembled view.
func (s *ChallengeService) Create(ctx context.Context, name, description string, startDate, endDate int64, targetDuration int, createdBy uuid.UUID) (*challenge.Challenge, error) {
	if err := validateChallenge(name, startDate, endDate, targetDuration); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var challengeID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO challenges (name, description, start_date, end_date, target_duration, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, name, description, startDate, endDate, targetDuration, createdBy).Scan(&challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert challenge: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO challenge_participants (challenge_id, user_id, contributed_minutes, joined_at)
		VALUES ($1, $2, 0, $3)
	`, challengeID, createdBy, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to add creator as participant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit challenge creation: %w", err)
	}

	created, err := s.FindByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("failed to read back newly created challenge %s", challengeID)
	}

	return created, nil
}

// FindByID assembles the full challenge view: the row itself, the creator
// preview and every participant resolved against the user directory. The
// creator and participant lookups run concurrently. A directory miss for a
// known participant fails the whole lookup, a dangling reference means the
// two stores disagree and silently dropping the row would hide it.
// Returns (nil, nil) when the challenge does not exist.
func (s *ChallengeService) FindByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	query := `
	SELECT id, name, description, start_date, end_date, target_duration,
	       current_progress, created_by, is_completed, created_at
	FROM challenges
	WHERE id = $1
	`

	c := &challenge.Challenge{}
	var createdBy uuid.UUID
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.StartDate,
		&c.EndDate,
		&c.TargetDuration,
		&c.CurrentProgress,
		&createdBy,
		&c.IsCompleted,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	var (
		wg              sync.WaitGroup
		creatorErr      error
		participantsErr error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		c.CreatedBy, creatorErr = s.resolveCreator(ctx, id, createdBy)
	}()

	go func() {
		defer wg.Done()
		c.Participants, participantsErr = s.participants(ctx, id)
	}()

	wg.Wait()

	if creatorErr != nil {
		return nil, creatorErr
	}
	if participantsErr != nil {
		return nil, participantsErr
	}

	return c, nil
}

// resolveCreator fails with an integrity error when the creator id has no
// directory entry. A challenge whose creator cannot be resolved means the two
// stores disagree, and hiding that would mask the corruption.
func (s *ChallengeService) resolveCreator(ctx context.Context, challengeID, createdBy uuid.UUID) (user.Preview, error) {
	creator, err := s.users.FindByID(ctx, createdBy)
	if err != nil {
		return user.Preview{}, err
	}
	if creator == nil {
		return user.Preview{}, apperrors.Integrity("creator %s of challenge %s not found in user directory", createdBy, challengeID)
	}
	return creator.Preview(), nil
}

type participantRow struct {
	userID             uuid.UUID
	contributedMinutes int
	joinedAt           int64
}

// participants loads the challenge's participant rows and resolves each user
// concurrently, preserving row order so the result is stable within one call.
func (s *ChallengeService) participants(ctx context.Context, challengeID uuid.UUID) ([]challenge.Participant, error) {
	query := `
	SELECT user_id, contributed_minutes, joined_at
	FROM challenge_participants
	WHERE challenge_id = $1
	ORDER BY joined_at, user_id
	`

	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var rowData []participantRow
	for rows.Next() {
		var r participantRow
		if err := rows.Scan(&r.userID, &r.contributedMinutes, &r.joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		rowData = append(rowData, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read participants: %w", err)
	}

	return s.resolveParticipants(ctx, challengeID, rowData)
}

// resolveParticipants resolves each row's user concurrently, preserving row
// order. A directory miss fails the whole batch with an integrity error
// instead of silently dropping the participant.
func (s *ChallengeService) resolveParticipants(ctx context.Context, challengeID uuid.UUID, rowData []participantRow) ([]challenge.Participant, error) {
	participants := make([]challenge.Participant, len(rowData))
	errs := make([]error, len(rowData))

	var wg sync.WaitGroup
	for i, r := range rowData {
		wg.Add(1)
		go func(i int, r participantRow) {
			defer wg.Done()
			u, err := s.users.FindByID(ctx, r.userID)
			if err != nil {
				errs[i] = err
				return
			}
			if u == nil {
				errs[i] = apperrors.Integrity("participant %s of challenge %s not found in user directory", r.userID, challengeID)
				return
			}
			participants[i] = challenge.Participant{
				User:               u.Preview(),
				ContributedMinutes: r.contributedMinutes,
				JoinedAt:           r.joinedAt,
			}
		}(i, r)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return participants, nil
}

// FindAllForUser returns every challenge the user currently participates in,
// each assembled as a full view.
func (s *ChallengeService) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]challenge.Challenge, error) {
	query := `
	SELECT c.id
	FROM challenges c
	JOIN challenge_participants p ON p.challenge_id = c.id
	WHERE p.user_id = $1
	ORDER BY c.created_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user challenges: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan challenge id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user challenges: %w", err)
	}

	challenges := make([]challenge.Challenge, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			c, err := s.FindByID(ctx, id)
			if err != nil {
				errs[i] = err
				return
			}
			if c == nil {
				errs[i] = apperrors.Integrity("challenge %s vanished while assembling user listing", id)
				return
			}
			challenges[i] = *c
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return challenges, nil
}

// ActiveMembership is one challenge a user can still contribute to: within its
// time window and not yet completed.
type ActiveMembership struct {
	ChallengeID uuid.UUID
	Name        string
}

// ActiveMembershipsForUser lists the challenges eligible for the workout
// fan-out: the user participates, now is inside [start, end], and the
// challenge has not completed. A late workout never reopens a finished
// challenge.
func (s *ChallengeService) ActiveMembershipsForUser(ctx context.Context, userID uuid.UUID, nowMillis int64) ([]ActiveMembership, error) {
	query := `
	SELECT c.id, c.name
	FROM challenges c
	JOIN challenge_participants p ON p.challenge_id = c.id
	WHERE p.user_id = $1
	  AND c.start_date <= $2
	  AND c.end_date >= $2
	  AND c.is_completed = FALSE
	`

	rows, err := s.db.Query(ctx, query, userID, nowMillis)
	if err != nil {
		return nil, fmt.Errorf("failed to query active memberships: %w", err)
	}
	defer rows.Close()

	var memberships []ActiveMembership
	for rows.Next() {
		var m ActiveMembership
		if err := rows.Scan(&m.ChallengeID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active memberships: %w", err)
	}

	return memberships, nil
}

// UpdateProgress adds additionalMinutes to the challenge's aggregate inside a
// transaction that locks the row for the read-modify-write. Concurrent updates
// from different users serialize here, so exactly one caller observes the
// false->true completion transition and gets JustCompleted back. Increments
// after completion are still recorded, only the flag is frozen.
func (s *ChallengeService) UpdateProgress(ctx context.Context, challengeID uuid.UUID, additionalMinutes int) (ProgressUpdate, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ProgressUpdate{}, fmt.Errorf("failed to begin progress transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		currentProgress int
		targetDuration  int
		isCompleted     bool
	)
	err = tx.QueryRow(ctx, `
		SELECT current_progress, target_duration, is_completed
		FROM challenges
		WHERE id = $1
		FOR UPDATE
	`, challengeID).Scan(&currentProgress, &targetDuration, &isCompleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressUpdate{}, nil
		}
		return ProgressUpdate{}, fmt.Errorf("failed to lock challenge row: %w", err)
	}

	newProgress := currentProgress + additionalMinutes
	justCompleted := !isCompleted && newProgress >= targetDuration

	_, err = tx.Exec(ctx, `
		UPDATE challenges
		SET current_progress = $2, is_completed = $3
		WHERE id = $1
	`, challengeID, newProgress, isCompleted || justCompleted)
	if err != nil {
		return ProgressUpdate{}, fmt.Errorf("failed to update progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ProgressUpdate{}, fmt.Errorf("failed to commit progress update: %w", err)
	}

	return ProgressUpdate{
		Updated:       true,
		JustCompleted: justCompleted,
		NewProgress:   newProgress,
	}, nil
}

// MarkCompleted flips the completion flag regardless of progress. Returns
// false if the challenge does not exist.
func (s *ChallengeService) MarkCompleted(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE challenges SET is_completed = TRUE WHERE id = $1
	`, challengeID)
	if err != nil {
		return false, fmt.Errorf("failed to mark challenge completed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
