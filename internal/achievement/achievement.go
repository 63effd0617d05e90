package achievement

import (
	"strings"

	"github.com/google/uuid"
)

// Completion tiers awarded when a challenge finishes. Names are part of the
// client contract, do not rename without bumping the app.
const (
	NameTopContributor       = "Top Contributor"
	NameMajorContributor     = "Major Contributor"
	NameValuableContributor  = "Valuable Contributor"
	NameChallengeParticipant = "Challenge Participant"
)

// Achievement is an append-only award record. ChallengeID is nil for
// achievements that are not tied to a challenge completion.
type Achievement struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"userId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	IconURL     string     `json:"iconUrl"`
	EarnedAt    int64      `json:"earnedAt"` // unix ms
	ChallengeID *uuid.UUID `json:"challengeId,omitempty"`
}

// IconURLFor maps a tier name to its static asset path, e.g.
// "Top Contributor" -> "/achievements/top_contributor.png".
func IconURLFor(name string) string {
	return "/achievements/" + strings.ReplaceAll(strings.ToLower(name), " ", "_") + ".png"
}

type AchievementsResponse struct {
	Achievements []Achievement `json:"achievements"`
}

type AchievementResponse struct {
	Achievement *Achievement `json:"achievement"`
}
