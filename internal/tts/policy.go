package tts

import (
	"time"

	"speechd/internal/domain"
)

const (
	// TrialDailyCharacterLimit is the trial budget, 20 minutes of audio/day.
	TrialDailyCharacterLimit = 20000
	// PaidDailyCharacterLimit is the paid budget, 200 minutes of audio/day.
	PaidDailyCharacterLimit = 200000
	// TrialWindow is the period after trial_started_at during which a trial
	// account may synthesize at all.
	TrialWindow = 7 * 24 * time.Hour
	// MaxTextCharacters bounds a single request's input.
	MaxTextCharacters = 10000
	// CharactersPerMinute is the informational conversion constant used for
	// duration estimates. Quota arithmetic is always character-denominated.
	CharactersPerMinute = 1000
)

// IneligibilityReason explains why an entitlement came back ineligible.
type IneligibilityReason string

const (
	ReasonTrialExpired         IneligibilityReason = "trial_expired"
	ReasonSubscriptionInactive IneligibilityReason = "subscription_inactive"
)

// Entitlement is the outcome of the tier policy for one instant.
type Entitlement struct {
	DailyCharacterLimit int
	MaxQuality          domain.Quality
	Eligible            bool
	Reason              IneligibilityReason
}

// Allows reports whether the entitlement covers the requested quality.
func (e Entitlement) Allows(q domain.Quality) bool {
	if q == domain.QualityNeural {
		return e.MaxQuality == domain.QualityNeural
	}
	return true
}

// Entitle computes the effective entitlement for a user at the given
// instant. Pure: all time-dependent behavior flows through now, so the 7-day
// boundary can be tested without wall-clock time.
//
// The trial window is a hard stop independent of the daily counter: an
// expired trial is ineligible even with characters left for the day.
func Entitle(u *domain.User, now time.Time) Entitlement {
	if u.Status != domain.StatusActive {
		return Entitlement{Reason: ReasonSubscriptionInactive}
	}
	if u.Tier == domain.TierPaid {
		return Entitlement{
			DailyCharacterLimit: PaidDailyCharacterLimit,
			MaxQuality:          domain.QualityNeural,
			Eligible:            true,
		}
	}
	if !now.Before(u.TrialStartedAt.Add(TrialWindow)) {
		return Entitlement{Reason: ReasonTrialExpired}
	}
	return Entitlement{
		DailyCharacterLimit: TrialDailyCharacterLimit,
		MaxQuality:          domain.QualityStandard,
		Eligible:            true,
	}
}
