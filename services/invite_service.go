package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spottedAPI/internal/apperrors"
	"spottedAPI/internal/challenge"
	"spottedAPI/internal/notification"
)

// challengeSource is the view lookup invites are resolved against. (nil, nil)
// means the challenge no longer exists.
type challengeSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error)
}

// InviteService mediates pending challenge invitations. At most one
// outstanding invite exists per (challenge, invitedUser) pair, and an invite
// is never created for someone who already participates.
type InviteService struct {
	db           *pgxpool.Pool
	challenges   challengeSource
	participants *ParticipantService
	users        userDirectory
	notifier     Notifier
}

func NewInviteService(db *pgxpool.Pool, challenges challengeSource, participants *ParticipantService, users userDirectory, notifier Notifier) *InviteService {
	return &InviteService{
		db:           db,
		challenges:   challenges,
		participants: participants,
		users:        users,
		notifier:     notifier,
	}
}

// Create returns (nil, nil) when an outstanding invite already exists for the
// pair or the user already participates. Both are benign double-submission
// races, not errors. The uniqueness constraint absorbs the remaining window
// between the participant check and the insert.
func (s *InviteService) Create(ctx context.Context, challengeID, invitedUserID, invitedByID uuid.UUID) (*uuid.UUID, error) {
	isParticipant, err := s.participants.IsParticipant(ctx, challengeID, invitedUserID)
	if err != nil {
		return nil, err
	}
	if isParticipant {
		return nil, nil
	}

	var inviteID uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO challenge_invites (challenge_id, invited_user_id, invited_by, invited_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (challenge_id, invited_user_id) DO NOTHING
		RETURNING id
	`, challengeID, invitedUserID, invitedByID, time.Now().UnixMilli()).Scan(&inviteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race to an earlier invite.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Push{
			UserID:   invitedUserID,
			Title:    "Challenge invite",
			Body:     "You have been invited to join a challenge",
			Category: notification.CategoryChallengeInvite,
			Data:     map[string]any{"challengeId": challengeID.String()},
		})
	}

	return &inviteID, nil
}

type inviteRow struct {
	id          uuid.UUID
	challengeID uuid.UUID
	invitedBy   uuid.UUID
	invitedAt   int64
}

// FindAllForUser resolves every outstanding invite addressed to the user.
// Resolution is best-effort: an invite whose challenge or inviter has vanished
// is dropped from the result rather than failing the listing, invites are not
// load-bearing the way challenge views are.
func (s *InviteService) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]challenge.Invite, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, challenge_id, invited_by, invited_at
		FROM challenge_invites
		WHERE invited_user_id = $1
		ORDER BY invited_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}
	defer rows.Close()

	var rowData []inviteRow
	for rows.Next() {
		var r inviteRow
		if err := rows.Scan(&r.id, &r.challengeID, &r.invitedBy, &r.invitedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		rowData = append(rowData, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invites: %w", err)
	}

	return s.resolveInviteRows(ctx, rowData), nil
}

// resolveInviteRows builds the invite views concurrently. A row that fails to
// resolve is dropped with a log line, it never fails the listing.
func (s *InviteService) resolveInviteRows(ctx context.Context, rowData []inviteRow) []challenge.Invite {
	resolved := make([]*challenge.Invite, len(rowData))

	var wg sync.WaitGroup
	for i, r := range rowData {
		wg.Add(1)
		go func(i int, r inviteRow) {
			defer wg.Done()
			inv, err := s.resolve(ctx, r)
			if err != nil {
				log.Printf("Dropping invite %s from listing: %v", r.id, err)
				return
			}
			resolved[i] = inv
		}(i, r)
	}
	wg.Wait()

	invites := make([]challenge.Invite, 0, len(resolved))
	for _, inv := range resolved {
		if inv != nil {
			invites = append(invites, *inv)
		}
	}

	return invites
}

// resolve builds the full invite view, or nil when the challenge or inviter
// no longer exists.
func (s *InviteService) resolve(ctx context.Context, r inviteRow) (*challenge.Invite, error) {
	c, err := s.challenges.FindByID(ctx, r.challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}

	inviter, err := s.users.FindByID(ctx, r.invitedBy)
	if err != nil {
		return nil, err
	}
	if inviter == nil {
		return nil, nil
	}

	return &challenge.Invite{
		ID:        r.id,
		Challenge: *c,
		InvitedBy: inviter.Preview(),
		InvitedAt: r.invitedAt,
	}, nil
}

// FindByChallengeAndUser returns (nil, nil) when no outstanding invite exists
// for the pair, or when its challenge or inviter has vanished.
func (s *InviteService) FindByChallengeAndUser(ctx context.Context, challengeID, userID uuid.UUID) (*challenge.Invite, error) {
	var r inviteRow
	err := s.db.QueryRow(ctx, `
		SELECT id, challenge_id, invited_by, invited_at
		FROM challenge_invites
		WHERE challenge_id = $1 AND invited_user_id = $2
	`, challengeID, userID).Scan(&r.id, &r.challengeID, &r.invitedBy, &r.invitedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}

	inv, err := s.resolve(ctx, r)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *InviteService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM challenge_invites WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete invite: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Respond consumes the invite. The invite row is deleted regardless of the
// answer, acceptance additionally adds the participant row. If the participant
// insert races an earlier acceptance the Add no-ops, which is fine: the user
// ends up a participant and the invite is gone either way.
func (s *InviteService) Respond(ctx context.Context, challengeID, userID uuid.UUID, accepted bool) error {
	var inviteID uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT id FROM challenge_invites
		WHERE challenge_id = $1 AND invited_user_id = $2
	`, challengeID, userID).Scan(&inviteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("invite")
		}
		return fmt.Errorf("failed to look up invite: %w", err)
	}

	if _, err := s.Delete(ctx, inviteID); err != nil {
		return err
	}

	if accepted {
		if _, err := s.participants.Add(ctx, challengeID, userID); err != nil {
			return err
		}
	}

	return nil
}
