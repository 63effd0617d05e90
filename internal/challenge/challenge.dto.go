package challenge

import "github.com/google/uuid"

type CreateChallengeRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	StartDate        int64    `json:"startDate"` // unix ms
	EndDate          int64    `json:"endDate"`   // unix ms
	TargetDuration   int      `json:"targetDuration"` // minutes
	InvitedUsernames []string `json:"invitedUsernames"`
}

type RespondToInviteRequest struct {
	ChallengeID uuid.UUID `json:"challengeId"`
	Accepted    bool      `json:"accepted"`
}

type RecordWorkoutRequest struct {
	DurationMinutes int    `json:"durationMinutes"`
	Description     string `json:"description,omitempty"`
}

type WorkoutRecordedResponse struct {
	UpdatedChallenges int `json:"updatedChallenges"`
}

type ChallengesResponse struct {
	Challenges []Challenge `json:"challenges"`
}

type ChallengeResponse struct {
	Challenge *Challenge `json:"challenge"`
}

type InvitesResponse struct {
	Invites []Invite `json:"invites"`
}
