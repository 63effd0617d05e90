package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"spottedAPI/internal/apperrors"
	"spottedAPI/internal/user"
)

// fakeUserDirectory serves previews from a map; absent ids resolve to
// (nil, nil) the way the real directory reports a miss.
type fakeUserDirectory struct {
	users map[uuid.UUID]*user.User
	err   error
}

func (f *fakeUserDirectory) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func directoryWith(ids ...uuid.UUID) *fakeUserDirectory {
	users := make(map[uuid.UUID]*user.User, len(ids))
	for i, id := range ids {
		users[id] = &user.User{ID: id, Username: "runner" + string(rune('a'+i))}
	}
	return &fakeUserDirectory{users: users}
}

func TestValidateChallenge(t *testing.T) {
	cases := []struct {
		name           string
		challengeName  string
		startDate      int64
		endDate        int64
		targetDuration int
		wantErr        bool
	}{
		{"valid", "Spring sprint", 1000, 2000, 60, false},
		{"blank name", "", 1000, 2000, 60, true},
		{"whitespace name", "   ", 1000, 2000, 60, true},
		{"start equals end", "Spring sprint", 2000, 2000, 60, true},
		{"start after end", "Spring sprint", 3000, 2000, 60, true},
		{"zero target", "Spring sprint", 1000, 2000, 0, true},
		{"negative target", "Spring sprint", 1000, 2000, -5, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateChallenge(tc.challengeName, tc.startDate, tc.endDate, tc.targetDuration)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !apperrors.Is(err, apperrors.CodeValidation) {
					t.Fatalf("expected validation code, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestResolveParticipantsDirectoryMissFailsLookup(t *testing.T) {
	known := uuid.New()
	missing := uuid.New()
	challengeID := uuid.New()

	s := NewChallengeService(nil, directoryWith(known))

	rowData := []participantRow{
		{userID: known, contributedMinutes: 30, joinedAt: 100},
		{userID: missing, contributedMinutes: 10, joinedAt: 200},
	}

	_, err := s.resolveParticipants(context.Background(), challengeID, rowData)
	if err == nil {
		t.Fatal("expected an error for a participant with no directory entry")
	}
	if !apperrors.Is(err, apperrors.CodeIntegrity) {
		t.Fatalf("expected integrity code, got %v", err)
	}
}

func TestResolveParticipantsPreservesRowOrder(t *testing.T) {
	first := uuid.New()
	second := uuid.New()

	s := NewChallengeService(nil, directoryWith(first, second))

	rowData := []participantRow{
		{userID: first, contributedMinutes: 30, joinedAt: 100},
		{userID: second, contributedMinutes: 10, joinedAt: 200},
	}

	participants, err := s.resolveParticipants(context.Background(), uuid.New(), rowData)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
	if participants[0].User.ID != first || participants[1].User.ID != second {
		t.Fatal("participants must come back in row order")
	}
	if participants[0].ContributedMinutes != 30 || participants[1].ContributedMinutes != 10 {
		t.Fatal("contributed minutes must follow their rows")
	}
}

func TestResolveCreatorDirectoryMiss(t *testing.T) {
	s := NewChallengeService(nil, directoryWith())

	_, err := s.resolveCreator(context.Background(), uuid.New(), uuid.New())
	if !apperrors.Is(err, apperrors.CodeIntegrity) {
		t.Fatalf("expected integrity code for an unresolvable creator, got %v", err)
	}
}

func TestResolveParticipantsPropagatesDirectoryError(t *testing.T) {
	dirErr := errors.New("directory unavailable")
	s := NewChallengeService(nil, &fakeUserDirectory{err: dirErr})

	rowData := []participantRow{{userID: uuid.New(), contributedMinutes: 5, joinedAt: 100}}

	_, err := s.resolveParticipants(context.Background(), uuid.New(), rowData)
	if !errors.Is(err, dirErr) {
		t.Fatalf("expected the directory error to surface, got %v", err)
	}
}
