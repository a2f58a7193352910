package domain

import (
	"encoding/json"
	"time"
)

// SubscriptionTier enumerates billing tiers.
type SubscriptionTier string

const (
	TierTrial SubscriptionTier = "trial"
	TierPaid  SubscriptionTier = "paid"
)

// SubscriptionStatus enumerates subscription lifecycle states.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Settings is the user preference blob. The synthesis core only reads the
// language and quality fields; everything else is opaque to it.
type Settings struct {
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
	Quality  string  `json:"quality"`
}

// DefaultSettings returns the settings applied to accounts that have never
// saved preferences.
func DefaultSettings() Settings {
	return Settings{Voice: "Lucia", Speed: 1.0, Language: "auto", Quality: "standard"}
}

// DecodeSettings parses a raw settings blob, falling back to defaults for a
// missing or empty document.
func DecodeSettings(raw []byte) Settings {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s
	}
	_ = json.Unmarshal(raw, &s)
	return s
}

// User represents an authenticated account. The synthesis core reads users,
// it never writes them.
type User struct {
	ID             string
	Email          string
	OAuthProvider  string
	OAuthSubject   string
	Tier           SubscriptionTier
	Status         SubscriptionStatus
	TrialStartedAt time.Time
	Settings       Settings
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsPaid reports whether the user is on the paid tier.
func (u User) IsPaid() bool {
	return u.Tier == TierPaid
}
