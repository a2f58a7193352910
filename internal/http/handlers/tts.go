package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"speechd/internal/domain"
	"speechd/internal/middleware"
	"speechd/internal/tts"
)

const usageHistoryDays = 30

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Quality  string `json:"quality"`
	Format   string `json:"format"`
}

var audioContentTypes = map[string]string{
	"mp3":        "audio/mpeg",
	"ogg_vorbis": "audio/ogg",
	"pcm":        "application/octet-stream",
}

// TTSSynthesize runs one synthesis request and streams the audio back. The
// consumption metadata rides in response headers so the body stays raw audio.
func (a *App) TTSSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	var quality domain.Quality
	if req.Quality != "" {
		q, err := domain.ParseQuality(req.Quality)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "quality must be standard or neural")
			return
		}
		quality = q
	}
	if req.Format != "" {
		if _, ok := audioContentTypes[req.Format]; !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "format must be mp3, ogg_vorbis or pcm")
			return
		}
	}

	user := a.currentUser(w, r)
	if user == nil {
		return
	}

	result, err := a.Synth.Synthesize(r.Context(), user, tts.Request{
		Text:     req.Text,
		Language: req.Language,
		Quality:  quality,
		Format:   req.Format,
		Fallback: tts.Language(middleware.FallbackLanguageFromContext(r.Context())),
	})
	if err != nil {
		a.ttsError(w, err)
		return
	}

	contentType := audioContentTypes[tts.DefaultFormat]
	if ct, ok := audioContentTypes[req.Format]; ok {
		contentType = ct
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Character-Count", itoa(result.Characters))
	w.Header().Set("X-Language-Used", string(result.Language))
	w.Header().Set("X-Voice-Id", result.VoiceID)
	w.Header().Set("X-Usage-Remaining", itoa(result.Remaining))
	w.Header().Set("X-Duration-Seconds", formatFloat(result.DurationSeconds))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Audio)
}

// TTSUsage reports today's consumption against the caller's limit plus a
// short history, newest day first.
func (a *App) TTSUsage(w http.ResponseWriter, r *http.Request) {
	user := a.currentUser(w, r)
	if user == nil {
		return
	}

	now := a.Now().UTC()
	ent := tts.Entitle(user, now)

	today, err := a.Ledger.Today(r.Context(), user.ID, now)
	if err != nil {
		a.Log.Error().Err(err).Str("user_id", user.ID).Msg("load usage day")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load usage")
		return
	}
	history, err := a.Ledger.History(r.Context(), user.ID, usageHistoryDays)
	if err != nil {
		a.Log.Error().Err(err).Str("user_id", user.ID).Msg("load usage history")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load usage")
		return
	}

	remaining := ent.DailyCharacterLimit - today.CharactersUsed
	if remaining < 0 {
		remaining = 0
	}
	resetsAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)

	days := make([]map[string]any, 0, len(history))
	for _, d := range history {
		days = append(days, usageDayJSON(d))
	}

	a.json(w, http.StatusOK, map[string]any{
		"today": map[string]any{
			"date":                 today.Date.Format("2006-01-02"),
			"characters_used":      today.CharactersUsed,
			"character_limit":      ent.DailyCharacterLimit,
			"characters_remaining": remaining,
			"request_count":        today.RequestCount,
			"estimated_minutes":    float64(today.CharactersUsed) / tts.CharactersPerMinute,
		},
		"history":   days,
		"resets_at": resetsAt.Format(time.RFC3339),
		"eligible":  ent.Eligible,
	})
}

func usageDayJSON(d domain.UsageDay) map[string]any {
	return map[string]any{
		"date":              d.Date.Format("2006-01-02"),
		"characters_used":   d.CharactersUsed,
		"request_count":     d.RequestCount,
		"estimated_minutes": float64(d.CharactersUsed) / tts.CharactersPerMinute,
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

// ttsError maps orchestrator failures onto the HTTP surface. Oversize text
// wraps both ErrTextTooLong and ErrInvalidInput, so the 413 check runs first.
func (a *App) ttsError(w http.ResponseWriter, err error) {
	var quota *domain.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		a.json(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"code":      "quota_exceeded",
				"message":   "daily character quota exceeded",
				"remaining": quota.Remaining,
				"resets_at": quota.ResetsAt.Format(time.RFC3339),
			},
		})
	case errors.Is(err, domain.ErrTextTooLong):
		a.error(w, http.StatusRequestEntityTooLarge, "text_too_long", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotEntitled):
		a.error(w, http.StatusPaymentRequired, "not_entitled", err.Error())
	case errors.Is(err, domain.ErrQualityNotPermitted):
		a.error(w, http.StatusForbidden, "quality_not_permitted", err.Error())
	case errors.Is(err, domain.ErrProviderTransient):
		a.error(w, http.StatusServiceUnavailable, "provider_unavailable", "synthesis provider unavailable, retry later")
	case errors.Is(err, domain.ErrProviderPermanent):
		a.error(w, http.StatusBadGateway, "provider_failed", "synthesis provider rejected the request")
	default:
		a.Log.Error().Err(err).Msg("synthesis failed")
		a.error(w, http.StatusInternalServerError, "internal", "synthesis failed")
	}
}
