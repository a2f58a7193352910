package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"speechd/internal/domain"
	"speechd/internal/middleware"
	"speechd/internal/tts"
)

// Synthesizer is the slice of the orchestrator the HTTP layer calls.
type Synthesizer interface {
	Synthesize(ctx context.Context, user *domain.User, req tts.Request) (*tts.Result, error)
}

type App struct {
	Users  domain.UserRepository
	Ledger domain.UsageLedger
	Synth  Synthesizer
	Log    zerolog.Logger
	Now    func() time.Time
}

func NewApp(users domain.UserRepository, ledger domain.UsageLedger, synth Synthesizer, log zerolog.Logger) *App {
	return &App{Users: users, Ledger: ledger, Synth: synth, Log: log, Now: time.Now}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// currentUser loads the authenticated user or writes the failure response and
// returns nil.
func (a *App) currentUser(w http.ResponseWriter, r *http.Request) *domain.User {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		return nil
	}
	return user
}
