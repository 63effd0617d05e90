package notification

import (
	"time"

	"github.com/google/uuid"
)

// Category tags a push so the app can route taps to the right screen.
type Category string

const (
	CategoryChallengeInvite    Category = "challenge_invite"
	CategoryChallengeCompleted Category = "challenge_completed"
	CategoryAchievementEarned  Category = "achievement_earned"
)

type DeviceToken struct {
	Token    string    `json:"token"`
	Platform string    `json:"platform"` // "android", "ios", "web"
	LastUsed time.Time `json:"lastUsed"`
}

// Push is a single fire-and-forget delivery request. Delivery failure never
// rolls back whatever write triggered it.
type Push struct {
	UserID   uuid.UUID      `json:"userId"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Category Category       `json:"category"`
	Data     map[string]any `json:"data,omitempty"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
