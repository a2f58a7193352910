package tts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechd/internal/domain"
)

func trialUser(started time.Time) *domain.User {
	return &domain.User{
		ID:             "u-trial",
		Tier:           domain.TierTrial,
		Status:         domain.StatusActive,
		TrialStartedAt: started,
		Settings:       domain.DefaultSettings(),
	}
}

func paidUser() *domain.User {
	return &domain.User{
		ID:       "u-paid",
		Tier:     domain.TierPaid,
		Status:   domain.StatusActive,
		Settings: domain.DefaultSettings(),
	}
}

func TestEntitleTrialActive(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ent := Entitle(trialUser(started), started.Add(48*time.Hour))

	require.True(t, ent.Eligible)
	assert.Equal(t, TrialDailyCharacterLimit, ent.DailyCharacterLimit)
	assert.Equal(t, domain.QualityStandard, ent.MaxQuality)
	assert.True(t, ent.Allows(domain.QualityStandard))
	assert.False(t, ent.Allows(domain.QualityNeural))
}

func TestEntitleTrialWindowBoundary(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := trialUser(started)

	// One second inside the window is still eligible.
	ent := Entitle(u, started.Add(TrialWindow-time.Second))
	assert.True(t, ent.Eligible)

	// The window boundary itself is a hard stop.
	ent = Entitle(u, started.Add(TrialWindow))
	require.False(t, ent.Eligible)
	assert.Equal(t, ReasonTrialExpired, ent.Reason)
	assert.Zero(t, ent.DailyCharacterLimit)

	ent = Entitle(u, started.Add(TrialWindow+time.Second))
	assert.False(t, ent.Eligible)
}

func TestEntitlePaid(t *testing.T) {
	ent := Entitle(paidUser(), time.Now().UTC())

	require.True(t, ent.Eligible)
	assert.Equal(t, PaidDailyCharacterLimit, ent.DailyCharacterLimit)
	assert.Equal(t, domain.QualityNeural, ent.MaxQuality)
	assert.True(t, ent.Allows(domain.QualityNeural))
	assert.True(t, ent.Allows(domain.QualityStandard))
}

func TestEntitleInactiveStatuses(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []domain.SubscriptionStatus{domain.StatusExpired, domain.StatusCancelled} {
		u := paidUser()
		u.Status = status
		ent := Entitle(u, now)
		require.False(t, ent.Eligible, "status %s", status)
		assert.Equal(t, ReasonSubscriptionInactive, ent.Reason)
	}
}

func TestEntitleInactiveTrialOutranksWindow(t *testing.T) {
	// A cancelled trial reads as subscription_inactive even inside the window.
	u := trialUser(time.Now().UTC())
	u.Status = domain.StatusCancelled
	ent := Entitle(u, time.Now().UTC())
	require.False(t, ent.Eligible)
	assert.Equal(t, ReasonSubscriptionInactive, ent.Reason)
}
