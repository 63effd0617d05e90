package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"spottedAPI/internal/achievement"
	"spottedAPI/internal/apperrors"
	"spottedAPI/internal/notification"
	"spottedAPI/services"
	"spottedAPI/tests/helpers"
)

type engine struct {
	users        *services.UserService
	participants *services.ParticipantService
	challenges   *services.ChallengeService
	invites      *services.InviteService
	achievements *services.AchievementService
	workouts     *services.WorkoutProgressService
	pushes       *recordingNotifier
}

// recordingNotifier captures dispatched pushes instead of delivering them.
type recordingNotifier struct {
	mu     sync.Mutex
	pushes []notification.Push
}

func (n *recordingNotifier) Dispatch(ctx context.Context, push notification.Push) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, push)
}

func (n *recordingNotifier) byCategory(category notification.Category) []notification.Push {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []notification.Push
	for _, p := range n.pushes {
		if p.Category == category {
			matched = append(matched, p)
		}
	}
	return matched
}

func newEngine(pool *pgxpool.Pool) *engine {
	pushes := &recordingNotifier{}
	users := services.NewUserService(pool)
	participants := services.NewParticipantService(pool)
	challenges := services.NewChallengeService(pool, users)
	invites := services.NewInviteService(pool, challenges, participants, users, pushes)
	achievements := services.NewAchievementService(pool, challenges, pushes)
	workouts := services.NewWorkoutProgressService(challenges, participants, challenges, achievements)

	return &engine{
		users:        users,
		participants: participants,
		challenges:   challenges,
		invites:      invites,
		achievements: achievements,
		workouts:     workouts,
		pushes:       pushes,
	}
}

func activeWindow() (int64, int64) {
	now := time.Now().UnixMilli()
	return now - int64(time.Hour/time.Millisecond), now + int64(time.Hour/time.Millisecond)
}

func TestChallengeCompletionFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	e := newEngine(pool)

	u1 := helpers.CreateTestUser(t, pool, "flow_u1")
	u2 := helpers.CreateTestUser(t, pool, "flow_u2")

	start, end := activeWindow()
	c, err := e.challenges.Create(ctx, "Team sprint", "Reach 60 minutes together", start, end, 60, u1)
	if err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}
	if len(c.Participants) != 1 {
		t.Fatalf("Creator should be the first participant, got %d participants", len(c.Participants))
	}

	if _, err := e.participants.Add(ctx, c.ID, u2); err != nil {
		t.Fatalf("Failed to add second participant: %v", err)
	}

	// U1 records 40 minutes: progress 40, not completed.
	result, err := e.workouts.RecordWorkout(ctx, u1, 40)
	if err != nil {
		t.Fatalf("Failed to record workout: %v", err)
	}
	if result.UpdatedChallenges != 1 {
		t.Fatalf("Expected 1 updated challenge, got %d", result.UpdatedChallenges)
	}

	view, err := e.challenges.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to reload challenge: %v", err)
	}
	if view.CurrentProgress != 40 {
		t.Fatalf("Expected progress 40, got %d", view.CurrentProgress)
	}
	if view.IsCompleted {
		t.Fatal("Challenge must not be completed at 40/60")
	}

	// U2 records 25 minutes: progress 65, completion fires once.
	if _, err := e.workouts.RecordWorkout(ctx, u2, 25); err != nil {
		t.Fatalf("Failed to record completing workout: %v", err)
	}

	view, err = e.challenges.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to reload challenge: %v", err)
	}
	if view.CurrentProgress != 65 {
		t.Fatalf("Expected progress 65, got %d", view.CurrentProgress)
	}
	if !view.IsCompleted {
		t.Fatal("Challenge should be completed at 65/60")
	}

	// U1 at 40/60 (66%): Top Contributor + Major Contributor.
	u1Awards := awardNames(t, e, ctx, u1, c.ID)
	if !u1Awards[achievement.NameTopContributor] {
		t.Error("U1 should have the Top Contributor award")
	}
	if !u1Awards[achievement.NameMajorContributor] {
		t.Error("U1 at 66 percent should have the Major Contributor award")
	}

	// U2 at 25/60 (41%): Valuable Contributor, no Top Contributor.
	u2Awards := awardNames(t, e, ctx, u2, c.ID)
	if !u2Awards[achievement.NameValuableContributor] {
		t.Error("U2 at 41 percent should have the Valuable Contributor award")
	}
	if u2Awards[achievement.NameTopContributor] {
		t.Error("U2 must not have the Top Contributor award")
	}

	// A workout after completion leaves the challenge untouched: it is no
	// longer in the active fan-out set.
	result, err = e.workouts.RecordWorkout(ctx, u1, 30)
	if err != nil {
		t.Fatalf("Failed to record post-completion workout: %v", err)
	}
	if result.UpdatedChallenges != 0 {
		t.Fatalf("Completed challenge must be excluded from fan-out, got %d updates", result.UpdatedChallenges)
	}

	total := len(awardList(t, e, ctx, u1, c.ID)) + len(awardList(t, e, ctx, u2, c.ID))
	if total != 3 {
		t.Fatalf("Expected exactly 3 awards for this challenge (top + 2 tiers), got %d", total)
	}

	earned := e.pushes.byCategory(notification.CategoryAchievementEarned)
	if len(earned) != 1 {
		t.Fatalf("Expected one achievement-earned push for the top contributor, got %d", len(earned))
	}
	if earned[0].UserID != u1 {
		t.Fatalf("Achievement-earned push should target U1, got %s", earned[0].UserID)
	}

	completed := e.pushes.byCategory(notification.CategoryChallengeCompleted)
	if len(completed) != 2 {
		t.Fatalf("Expected a completion push per participant, got %d", len(completed))
	}
}

func awardList(t *testing.T, e *engine, ctx context.Context, userID, challengeID uuid.UUID) []achievement.Achievement {
	t.Helper()
	all, err := e.achievements.FindAllForUser(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to list achievements: %v", err)
	}
	var filtered []achievement.Achievement
	for _, a := range all {
		if a.ChallengeID != nil && *a.ChallengeID == challengeID {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func awardNames(t *testing.T, e *engine, ctx context.Context, userID, challengeID uuid.UUID) map[string]bool {
	t.Helper()
	names := make(map[string]bool)
	for _, a := range awardList(t, e, ctx, userID, challengeID) {
		names[a.Name] = true
	}
	return names
}

func TestConcurrentWorkoutsDoNotLoseUpdates(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	e := newEngine(pool)

	u := helpers.CreateTestUser(t, pool, "conc_u")
	start, end := activeWindow()
	c, err := e.challenges.Create(ctx, "Lost update check", "", start, end, 10000, u)
	if err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}

	// Two 30-minute workouts for the same user land at the same time. The
	// ledger must end at 60, not 30.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.workouts.RecordWorkout(ctx, u, 30); err != nil {
				t.Errorf("Concurrent workout failed: %v", err)
			}
		}()
	}
	wg.Wait()

	minutes, err := e.participants.ContributedMinutes(ctx, c.ID, u)
	if err != nil {
		t.Fatalf("Failed to read contributed minutes: %v", err)
	}
	if minutes != 60 {
		t.Fatalf("Expected 60 contributed minutes after two concurrent workouts, got %d", minutes)
	}

	view, err := e.challenges.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to reload challenge: %v", err)
	}
	if view.CurrentProgress != 60 {
		t.Fatalf("Expected aggregate progress 60, got %d", view.CurrentProgress)
	}
}

func TestExpiredChallengeExcludedFromFanOut(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	e := newEngine(pool)

	u := helpers.CreateTestUser(t, pool, "exp_u")
	now := time.Now().UnixMilli()
	c, err := e.challenges.Create(ctx, "Last month", "", now-2000000, now-1000000, 60, u)
	if err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}

	result, err := e.workouts.RecordWorkout(ctx, u, 30)
	if err != nil {
		t.Fatalf("Failed to record workout: %v", err)
	}
	if result.UpdatedChallenges != 0 {
		t.Fatalf("Expired challenge must be excluded, got %d updates", result.UpdatedChallenges)
	}

	view, err := e.challenges.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to reload challenge: %v", err)
	}
	if view.CurrentProgress != 0 {
		t.Fatalf("Expired challenge progress must stay 0, got %d", view.CurrentProgress)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	e := newEngine(pool)

	u := helpers.CreateTestUser(t, pool, "val_u")
	now := time.Now().UnixMilli()

	_, err := e.challenges.Create(ctx, "Backwards", "", now+1000, now, 60, u)
	if err == nil {
		t.Fatal("Expected validation error for inverted date range")
	}
	if !apperrors.Is(err, apperrors.CodeValidation) {
		t.Fatalf("Expected validation code, got %v", err)
	}

	// No row may be persisted on a failed create.
	challenges, err := e.challenges.FindAllForUser(ctx, u)
	if err != nil {
		t.Fatalf("Failed to list challenges: %v", err)
	}
	if len(challenges) != 0 {
		t.Fatalf("Validation failure must not persist a challenge, found %d", len(challenges))
	}
}

func TestInviteLifecycle(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	e := newEngine(pool)

	owner := helpers.CreateTestUser(t, pool, "inv_owner")
	invitee := helpers.CreateTestUser(t, pool, "inv_target")
	decliner := helpers.CreateTestUser(t, pool, "inv_decline")

	start, end := activeWindow()
	c, err := e.challenges.Create(ctx, "Invite flow", "", start, end, 60, owner)
	if err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}

	// Idempotence: the second create for the same pair yields no new id.
	first, err := e.invites.Create(ctx, c.ID, invitee, owner)
	if err != nil {
		t.Fatalf("Failed to create invite: %v", err)
	}
	if first == nil {
		t.Fatal("First invite should return an id")
	}
	second, err := e.invites.Create(ctx, c.ID, invitee, owner)
	if err != nil {
		t.Fatalf("Duplicate invite create errored: %v", err)
	}
	if second != nil {
		t.Fatal("Duplicate invite must be a silent no-op")
	}

	// Inviting an existing participant is a silent no-op.
	selfInvite, err := e.invites.Create(ctx, c.ID, owner, owner)
	if err != nil {
		t.Fatalf("Participant invite create errored: %v", err)
	}
	if selfInvite != nil {
		t.Fatal("Inviting an existing participant must return no id")
	}

	// Accept: invite consumed, participant added.
	if err := e.invites.Respond(ctx, c.ID, invitee, true); err != nil {
		t.Fatalf("Failed to accept invite: %v", err)
	}
	gone, err := e.invites.FindByChallengeAndUser(ctx, c.ID, invitee)
	if err != nil {
		t.Fatalf("Failed to look up consumed invite: %v", err)
	}
	if gone != nil {
		t.Fatal("Accepted invite must be deleted")
	}
	isParticipant, err := e.participants.IsParticipant(ctx, c.ID, invitee)
	if err != nil {
		t.Fatalf("Failed to check participant: %v", err)
	}
	if !isParticipant {
		t.Fatal("Accepting an invite must add the participant")
	}

	// Decline: invite consumed, no participant row.
	if _, err := e.invites.Create(ctx, c.ID, decliner, owner); err != nil {
		t.Fatalf("Failed to create decline invite: %v", err)
	}
	if err := e.invites.Respond(ctx, c.ID, decliner, false); err != nil {
		t.Fatalf("Failed to decline invite: %v", err)
	}
	gone, err = e.invites.FindByChallengeAndUser(ctx, c.ID, decliner)
	if err != nil {
		t.Fatalf("Failed to look up declined invite: %v", err)
	}
	if gone != nil {
		t.Fatal("Declined invite must be deleted")
	}
	isParticipant, err = e.participants.IsParticipant(ctx, c.ID, decliner)
	if err != nil {
		t.Fatalf("Failed to check participant: %v", err)
	}
	if isParticipant {
		t.Fatal("Declining an invite must not add the participant")
	}

	// Responding again is a not-found outcome.
	err = e.invites.Respond(ctx, c.ID, decliner, true)
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("Expected not-found for a consumed invite, got %v", err)
	}
}

func TestLeavingKeepsContributionInTotal(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	e := newEngine(pool)

	owner := helpers.CreateTestUser(t, pool, "leave_owner")
	leaver := helpers.CreateTestUser(t, pool, "leave_u")

	start, end := activeWindow()
	c, err := e.challenges.Create(ctx, "Leaver", "", start, end, 500, owner)
	if err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}
	if _, err := e.participants.Add(ctx, c.ID, leaver); err != nil {
		t.Fatalf("Failed to add participant: %v", err)
	}

	if _, err := e.workouts.RecordWorkout(ctx, leaver, 45); err != nil {
		t.Fatalf("Failed to record workout: %v", err)
	}

	removed, err := e.participants.Remove(ctx, c.ID, leaver)
	if err != nil {
		t.Fatalf("Failed to remove participant: %v", err)
	}
	if !removed {
		t.Fatal("Expected participant row to be removed")
	}

	view, err := e.challenges.FindByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to reload challenge: %v", err)
	}
	if view.CurrentProgress != 45 {
		t.Fatalf("Departure must not subtract contribution, got progress %d", view.CurrentProgress)
	}
	if len(view.Participants) != 1 {
		t.Fatalf("Expected only the owner to remain, got %d participants", len(view.Participants))
	}
}
