package tts

import (
	"context"
	"fmt"

	"speechd/internal/domain"
)

// ProviderRequest is the downstream synthesis call.
type ProviderRequest struct {
	Text    string
	VoiceID string
	Quality domain.Quality
	Format  string
}

// ProviderResult carries the synthesized audio. DurationSeconds is zero when
// the provider does not report one.
type ProviderResult struct {
	Audio           []byte
	DurationSeconds float64
}

// Provider is the external speech-synthesis collaborator.
type Provider interface {
	Synthesize(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
}

// ProviderError classifies downstream failures. Transient failures
// (throttling, 5xx, timeouts) may be retried by the caller after the
// orchestrator has released the reservation; permanent ones may not.
type ProviderError struct {
	Transient bool
	Status    int
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("provider %s failure (status %d): %v", kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s failure: %v", kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
