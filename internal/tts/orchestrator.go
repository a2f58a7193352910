package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"speechd/internal/domain"
)

const (
	// DefaultFormat is the provider-native audio format used when the
	// request does not name one.
	DefaultFormat = "mp3"

	defaultProviderTimeout = 30 * time.Second
	releaseTimeout         = 5 * time.Second
)

// Ledger is the slice of domain.UsageLedger the orchestrator mutates through.
type Ledger interface {
	Reserve(ctx context.Context, userID string, day time.Time, characters, limit int) (*domain.Reservation, error)
	Release(ctx context.Context, res *domain.Reservation) error
}

// Request is one synthesis request.
type Request struct {
	Text     string
	Language string         // explicit code, "auto", or empty (user settings decide)
	Quality  domain.Quality // empty: user settings, then standard
	Format   string         // empty: DefaultFormat
	Fallback Language       // used when detection fails; empty uses the orchestrator default
}

// Result carries the audio plus post-commit consumption metadata. Remaining
// and RequestsToday come from the ledger's reserve, never from a stale
// pre-request read.
type Result struct {
	Audio           []byte
	Language        Language
	VoiceID         string
	Quality         domain.Quality
	Characters      int
	Remaining       int
	RequestsToday   int
	DurationSeconds float64
}

// Orchestrator runs the end-to-end synthesis flow: validate, entitle,
// resolve voice, reserve quota, call the provider, then either keep the
// charge (success) or release it (any provider failure).
type Orchestrator struct {
	ledger   Ledger
	provider Provider
	detector *Detector
	voices   *VoiceTable
	fallback Language
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// OrchestratorOptions configures NewOrchestrator.
type OrchestratorOptions struct {
	Ledger          Ledger
	Provider        Provider
	Detector        *Detector
	Voices          *VoiceTable
	DefaultLanguage Language
	ProviderTimeout time.Duration
	Now             func() time.Time
	Logger          zerolog.Logger
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Ledger == nil || opts.Provider == nil || opts.Detector == nil || opts.Voices == nil {
		return nil, errors.New("tts: ledger, provider, detector and voices are required")
	}
	fallback := opts.DefaultLanguage
	if fallback == "" {
		fallback = LangEnglish
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		ledger:   opts.Ledger,
		provider: opts.Provider,
		detector: opts.Detector,
		voices:   opts.Voices,
		fallback: fallback,
		timeout:  timeout,
		now:      now,
		log:      opts.Logger,
	}, nil
}

// Synthesize runs one request. Quota is charged before the provider call and
// backed out if the call fails; no retries happen here.
func (o *Orchestrator) Synthesize(ctx context.Context, user *domain.User, req Request) (*Result, error) {
	chars := utf8.RuneCountInString(req.Text)
	if chars == 0 {
		return nil, fmt.Errorf("text is empty: %w", domain.ErrInvalidInput)
	}
	if chars > MaxTextCharacters {
		return nil, fmt.Errorf("text is %d characters, limit is %d: %w: %w",
			chars, MaxTextCharacters, domain.ErrTextTooLong, domain.ErrInvalidInput)
	}

	now := o.now().UTC()
	ent := Entitle(user, now)
	if !ent.Eligible {
		return nil, fmt.Errorf("%s: %w", ent.Reason, domain.ErrNotEntitled)
	}
	quality := o.resolveQuality(user, req)
	if !ent.Allows(quality) {
		return nil, fmt.Errorf("%s quality requires a paid subscription: %w",
			quality, domain.ErrQualityNotPermitted)
	}

	lang, err := o.resolveLanguage(user, req)
	if err != nil {
		return nil, err
	}
	voice := o.voices.Select(lang, quality)

	o.log.Info().
		Str("user_id", user.ID).
		Str("language", string(lang)).
		Str("voice", voice).
		Str("quality", string(quality)).
		Int("characters", chars).
		Msg("synthesis request")

	res, err := o.ledger.Reserve(ctx, user.ID, now, chars, ent.DailyCharacterLimit)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve quota: %w", err)
	}

	format := req.Format
	if format == "" {
		format = DefaultFormat
	}

	pctx, cancel := context.WithTimeout(ctx, o.timeout)
	out, perr := o.provider.Synthesize(pctx, ProviderRequest{
		Text:    req.Text,
		VoiceID: voice,
		Quality: quality,
		Format:  format,
	})
	cancel()
	if perr != nil {
		if rerr := o.release(ctx, res); rerr != nil {
			// An unreleased reservation corrupts the shared counter, so a
			// failed compensation outranks the provider failure.
			o.log.Error().Err(rerr).
				Str("user_id", user.ID).
				Str("reservation_id", res.ID.String()).
				AnErr("provider_error", perr).
				Msg("release after provider failure failed")
			return nil, fmt.Errorf("release reservation %s: %w", res.ID, rerr)
		}
		return nil, classifyProviderFailure(perr)
	}

	duration := out.DurationSeconds
	if duration == 0 {
		duration = float64(chars) / CharactersPerMinute * 60
	}

	remaining := ent.DailyCharacterLimit - res.CharactersUsed
	o.log.Info().
		Str("user_id", user.ID).
		Int("characters", chars).
		Int("remaining", remaining).
		Msg("synthesis complete")

	return &Result{
		Audio:           out.Audio,
		Language:        lang,
		VoiceID:         voice,
		Quality:         quality,
		Characters:      chars,
		Remaining:       remaining,
		RequestsToday:   res.RequestCount,
		DurationSeconds: duration,
	}, nil
}

// release runs compensation on a context that survives caller cancellation:
// a cancelled request must never strand a reservation.
func (o *Orchestrator) release(ctx context.Context, res *domain.Reservation) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	return o.ledger.Release(rctx, res)
}

func (o *Orchestrator) resolveQuality(user *domain.User, req Request) domain.Quality {
	if req.Quality != "" {
		return req.Quality
	}
	if q := domain.Quality(user.Settings.Quality); q == domain.QualityNeural {
		return q
	}
	return domain.QualityStandard
}

func (o *Orchestrator) resolveLanguage(user *domain.User, req Request) (Language, error) {
	code := strings.TrimSpace(req.Language)
	if code == "" {
		code = strings.TrimSpace(user.Settings.Language)
	}
	if code == "" || code == LanguageAuto {
		if lang, ok := o.detector.Detect(req.Text); ok {
			return lang, nil
		}
		if req.Fallback != "" {
			return req.Fallback, nil
		}
		return o.fallback, nil
	}
	return ParseLanguage(code)
}

func classifyProviderFailure(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) && !pe.Transient {
		return fmt.Errorf("%v: %w", err, domain.ErrProviderPermanent)
	}
	// Timeouts, cancellation and throttling all read as transient: the
	// reservation has been released and the caller may retry the request.
	return fmt.Errorf("%v: %w", err, domain.ErrProviderTransient)
}
