package challenge

import (
	"time"

	"github.com/google/uuid"

	"spottedAPI/internal/user"
)

// Challenge is a time-boxed group goal expressed as a target number of
// cumulative workout minutes. CurrentProgress always equals the sum of every
// contribution ever recorded for it, including minutes from participants who
// later left.
type Challenge struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	StartDate       int64         `json:"startDate"` // unix ms
	EndDate         int64         `json:"endDate"`   // unix ms
	TargetDuration  int           `json:"targetDuration"`  // minutes
	CurrentProgress int           `json:"currentProgress"` // minutes
	Participants    []Participant `json:"participants"`
	CreatedBy       user.Preview  `json:"createdBy"`
	IsCompleted     bool          `json:"isCompleted"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type Participant struct {
	User               user.Preview `json:"user"`
	ContributedMinutes int          `json:"contributedMinutes"`
	JoinedAt           int64        `json:"joinedAt"` // unix ms
}

// Invite is a pending, single-use offer for a user to join a challenge. It is
// consumed (deleted) exactly once when the invitee responds, regardless of the
// answer.
type Invite struct {
	ID        uuid.UUID    `json:"id"`
	Challenge Challenge    `json:"challenge"`
	InvitedBy user.Preview `json:"invitedBy"`
	InvitedAt int64        `json:"invitedAt"` // unix ms
}
