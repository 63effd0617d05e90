package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// The coordinator talks to the other services through narrow interfaces so
// the fan-out and single-fire logic can be exercised without a database. The
// concrete services satisfy these implicitly.

type membershipSource interface {
	ActiveMembershipsForUser(ctx context.Context, userID uuid.UUID, nowMillis int64) ([]ActiveMembership, error)
}

type contributionLedger interface {
	IncrementContribution(ctx context.Context, challengeID, userID uuid.UUID, deltaMinutes int) (bool, error)
}

type progressRegistry interface {
	UpdateProgress(ctx context.Context, challengeID uuid.UUID, additionalMinutes int) (ProgressUpdate, error)
}

type completionAwarder interface {
	AwardChallengeCompletion(ctx context.Context, challengeID uuid.UUID) (bool, error)
}

// WorkoutProgressService is the orchestration entry point invoked once per
// recorded workout. It fans the duration out across every active challenge the
// user participates in, and fires the achievement awarder for a challenge
// exactly when its own progress update crossed the completion threshold.
type WorkoutProgressService struct {
	memberships membershipSource
	ledger      contributionLedger
	registry    progressRegistry
	awarder     completionAwarder
}

func NewWorkoutProgressService(memberships membershipSource, ledger contributionLedger, registry progressRegistry, awarder completionAwarder) *WorkoutProgressService {
	return &WorkoutProgressService{
		memberships: memberships,
		ledger:      ledger,
		registry:    registry,
		awarder:     awarder,
	}
}

type WorkoutResult struct {
	UpdatedChallenges int
}

// RecordWorkout attributes workoutMinutes to each of the user's active
// challenges. Per-challenge updates run concurrently and fail independently:
// a broken challenge update is logged and excluded from the count, never
// aborting its siblings. Recording the workout post itself has already
// committed by the time this runs, so challenge-progress failure is a
// background effect, not a reason to fail the user's action.
//
// The awarder is triggered only when this call's own UpdateProgress reported
// JustCompleted. Re-reading the flag afterward would double-fire under
// concurrency: a second updater could observe a flag the first one flipped.
func (s *WorkoutProgressService) RecordWorkout(ctx context.Context, userID uuid.UUID, workoutMinutes int) (*WorkoutResult, error) {
	if workoutMinutes <= 0 {
		return &WorkoutResult{}, nil
	}

	memberships, err := s.memberships.ActiveMembershipsForUser(ctx, userID, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return &WorkoutResult{}, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updated int
	)

	for _, m := range memberships {
		wg.Add(1)
		go func(m ActiveMembership) {
			defer wg.Done()

			incremented, err := s.ledger.IncrementContribution(ctx, m.ChallengeID, userID, workoutMinutes)
			if err != nil {
				log.Printf("Workout fan-out: failed to increment ledger for challenge %s: %v", m.ChallengeID, err)
				return
			}
			if !incremented {
				// Membership disappeared between the query and the update,
				// e.g. the user left the challenge. Nothing to attribute.
				log.Printf("Workout fan-out: user %s no longer participates in challenge %s", userID, m.ChallengeID)
				return
			}

			update, err := s.registry.UpdateProgress(ctx, m.ChallengeID, workoutMinutes)
			if err != nil {
				log.Printf("Workout fan-out: failed to update progress for challenge %s: %v", m.ChallengeID, err)
				return
			}
			if !update.Updated {
				log.Printf("Workout fan-out: challenge %s vanished mid-update", m.ChallengeID)
				return
			}

			mu.Lock()
			updated++
			mu.Unlock()

			if update.JustCompleted {
				log.Printf("Challenge %s (%s) completed at %d minutes", m.ChallengeID, m.Name, update.NewProgress)
				if _, err := s.awarder.AwardChallengeCompletion(ctx, m.ChallengeID); err != nil {
					log.Printf("Workout fan-out: failed to award completion for challenge %s: %v", m.ChallengeID, err)
				}
			}
		}(m)
	}
	wg.Wait()

	return &WorkoutResult{UpdatedChallenges: updated}, nil
}
