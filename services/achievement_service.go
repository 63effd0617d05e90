package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spottedAPI/internal/achievement"
	"spottedAPI/internal/challenge"
	"spottedAPI/internal/notification"
)

// AchievementService persists award records and derives the per-participant
// awards when a challenge completes. Achievement rows are append-only, the
// service never updates or deletes them.
//
// Create enforces no idempotency on its own: the workout coordinator
// guarantees AwardChallengeCompletion fires once per completion transition,
// so each (user, challenge, tier) insert happens once.
type AchievementService struct {
	db         *pgxpool.Pool
	challenges *ChallengeService
	notifier   Notifier
}

func NewAchievementService(db *pgxpool.Pool, challenges *ChallengeService, notifier Notifier) *AchievementService {
	return &AchievementService{db: db, challenges: challenges, notifier: notifier}
}

func (s *AchievementService) Create(ctx context.Context, userID uuid.UUID, name, description, iconURL string, challengeID *uuid.UUID) (*achievement.Achievement, error) {
	a := &achievement.Achievement{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO achievements (user_id, name, description, icon_url, earned_at, challenge_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, name, description, icon_url, earned_at, challenge_id
	`, userID, name, description, iconURL, time.Now().UnixMilli(), challengeID).Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Description,
		&a.IconURL,
		&a.EarnedAt,
		&a.ChallengeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create achievement: %w", err)
	}

	return a, nil
}

// FindByID returns (nil, nil) when no achievement exists with the given id.
func (s *AchievementService) FindByID(ctx context.Context, id uuid.UUID) (*achievement.Achievement, error) {
	a := &achievement.Achievement{}
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, description, icon_url, earned_at, challenge_id
		FROM achievements
		WHERE id = $1
	`, id).Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Description,
		&a.IconURL,
		&a.EarnedAt,
		&a.ChallengeID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get achievement: %w", err)
	}

	return a, nil
}

func (s *AchievementService) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]achievement.Achievement, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, name, description, icon_url, earned_at, challenge_id
		FROM achievements
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var achievements []achievement.Achievement
	for rows.Next() {
		var a achievement.Achievement
		err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.IconURL, &a.EarnedAt, &a.ChallengeID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read achievements: %w", err)
	}

	return achievements, nil
}

// rankParticipants orders by contributed minutes descending. Ties break on
// earliest joinedAt, then user id, so the top contributor is deterministic
// when two participants logged the same minutes.
func rankParticipants(participants []challenge.Participant) []challenge.Participant {
	ranked := make([]challenge.Participant, len(participants))
	copy(ranked, participants)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ContributedMinutes != ranked[j].ContributedMinutes {
			return ranked[i].ContributedMinutes > ranked[j].ContributedMinutes
		}
		if ranked[i].JoinedAt != ranked[j].JoinedAt {
			return ranked[i].JoinedAt < ranked[j].JoinedAt
		}
		return ranked[i].User.ID.String() < ranked[j].User.ID.String()
	})

	return ranked
}

// completionTier maps a participant's share of the target to an award name.
func completionTier(contributedMinutes, targetDuration int) string {
	contributionPercent := float64(contributedMinutes) / float64(targetDuration) * 100

	switch {
	case contributionPercent >= 50:
		return achievement.NameMajorContributor
	case contributionPercent >= 25:
		return achievement.NameValuableContributor
	default:
		return achievement.NameChallengeParticipant
	}
}

// AwardChallengeCompletion grants the completion awards for one challenge: a
// single Top Contributor award for the highest contributor, and exactly one
// tiered completion award per participant (the top contributor included).
// The per-participant inserts are independent and run concurrently. Callers
// must invoke this at most once per completion transition, the inserts are
// deliberately not idempotent.
//
// Returns false when the challenge does not exist or has no participants.
func (s *AchievementService) AwardChallengeCompletion(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	c, err := s.challenges.FindByID(ctx, challengeID)
	if err != nil {
		return false, err
	}
	if c == nil || len(c.Participants) == 0 {
		return false, nil
	}

	ranked := rankParticipants(c.Participants)

	top := ranked[0]
	_, err = s.Create(
		ctx,
		top.User.ID,
		achievement.NameTopContributor,
		fmt.Sprintf("Contributed the most minutes to challenge: %s", c.Name),
		achievement.IconURLFor(achievement.NameTopContributor),
		&challengeID,
	)
	if err != nil {
		return false, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Push{
			UserID:   top.User.ID,
			Title:    "Achievement earned!",
			Body:     fmt.Sprintf("You were the top contributor in %s", c.Name),
			Category: notification.CategoryAchievementEarned,
			Data:     map[string]any{"challengeId": challengeID.String()},
		})
	}

	errs := make([]error, len(ranked))

	var wg sync.WaitGroup
	for i, p := range ranked {
		wg.Add(1)
		go func(i int, p challenge.Participant) {
			defer wg.Done()

			name := completionTier(p.ContributedMinutes, c.TargetDuration)
			_, err := s.Create(
				ctx,
				p.User.ID,
				name,
				fmt.Sprintf("Completed challenge: %s", c.Name),
				achievement.IconURLFor(name),
				&challengeID,
			)
			if err != nil {
				errs[i] = err
				return
			}

			if s.notifier != nil {
				s.notifier.Dispatch(ctx, notification.Push{
					UserID:   p.User.ID,
					Title:    "Challenge completed!",
					Body:     fmt.Sprintf("%s is done. You earned: %s", c.Name, name),
					Category: notification.CategoryChallengeCompleted,
					Data:     map[string]any{"challengeId": challengeID.String()},
				})
			}
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			log.Printf("Failed to award completion achievement for challenge %s: %v", challengeID, err)
			return true, err
		}
	}

	return true, nil
}
