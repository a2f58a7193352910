package handlers

import (
	"net/http"
	"time"

	"speechd/internal/domain"
	"speechd/internal/tts"
)

// Me returns the caller's account, subscription state and synthesis settings.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	user := a.currentUser(w, r)
	if user == nil {
		return
	}

	out := map[string]any{
		"id":     user.ID,
		"email":  user.Email,
		"tier":   string(user.Tier),
		"status": string(user.Status),
		"settings": map[string]any{
			"voice":    user.Settings.Voice,
			"speed":    user.Settings.Speed,
			"language": user.Settings.Language,
			"quality":  user.Settings.Quality,
		},
	}
	if user.Tier == domain.TierTrial {
		out["trial_ends_at"] = user.TrialStartedAt.Add(tts.TrialWindow).UTC().Format(time.RFC3339)
	}
	a.json(w, http.StatusOK, out)
}
