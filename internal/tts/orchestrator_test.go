package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speechd/internal/domain"
)

// memoryLedger is an in-memory Ledger with the same admission semantics as
// the PostgreSQL implementation: a reserve either fits entirely or changes
// nothing.
type memoryLedger struct {
	mu           sync.Mutex
	used         int
	requests     int
	released     map[uuid.UUID]bool
	reserveCalls int
	releaseErr   error
	releaseCtx   bool // propagate ctx.Err from Release
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{released: map[uuid.UUID]bool{}}
}

func (l *memoryLedger) Reserve(_ context.Context, userID string, day time.Time, characters, limit int) (*domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserveCalls++
	if l.used+characters > limit {
		remaining := limit - l.used
		if remaining < 0 {
			remaining = 0
		}
		return nil, &domain.QuotaExceededError{Remaining: remaining, ResetsAt: day.Add(24 * time.Hour)}
	}
	l.used += characters
	l.requests++
	return &domain.Reservation{
		ID:             uuid.New(),
		UserID:         userID,
		Date:           day,
		Characters:     characters,
		CharactersUsed: l.used,
		RequestCount:   l.requests,
	}, nil
}

func (l *memoryLedger) Release(ctx context.Context, res *domain.Reservation) error {
	if res == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.releaseErr != nil {
		return l.releaseErr
	}
	if l.releaseCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if l.released[res.ID] {
		return nil
	}
	l.released[res.ID] = true
	l.used -= res.Characters
	if l.used < 0 {
		l.used = 0
	}
	l.requests--
	return nil
}

type fakeProvider struct {
	audio    []byte
	duration float64
	err      error
	onCall   func(ctx context.Context)
	calls    atomic.Int64
}

func (p *fakeProvider) Synthesize(ctx context.Context, _ ProviderRequest) (*ProviderResult, error) {
	p.calls.Add(1)
	if p.onCall != nil {
		p.onCall(ctx)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &ProviderResult{Audio: p.audio, DurationSeconds: p.duration}, nil
}

func newTestOrchestrator(t *testing.T, ledger Ledger, provider Provider) *Orchestrator {
	t.Helper()
	voices, err := NewVoiceTable()
	if err != nil {
		t.Fatalf("voice table: %v", err)
	}
	orch, err := NewOrchestrator(OrchestratorOptions{
		Ledger:   ledger,
		Provider: provider,
		Detector: testDetector,
		Voices:   voices,
		Now:      func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) },
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return orch
}

func englishTrialUser() *domain.User {
	u := trialUser(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	u.Settings.Language = "en"
	return u
}

func TestSynthesizeSuccess(t *testing.T) {
	ledger := newMemoryLedger()
	provider := &fakeProvider{audio: []byte("mp3-bytes")}
	orch := newTestOrchestrator(t, ledger, provider)

	text := strings.Repeat("ab", 2500) // 5000 characters
	res, err := orch.Synthesize(context.Background(), englishTrialUser(), Request{Text: text})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(res.Audio) != "mp3-bytes" {
		t.Fatalf("audio = %q", res.Audio)
	}
	if res.Language != LangEnglish || res.VoiceID != "Matthew" || res.Quality != domain.QualityStandard {
		t.Fatalf("resolved %s/%s/%s", res.Language, res.VoiceID, res.Quality)
	}
	if res.Characters != 5000 || res.Remaining != 15000 || res.RequestsToday != 1 {
		t.Fatalf("metadata characters=%d remaining=%d requests=%d", res.Characters, res.Remaining, res.RequestsToday)
	}
	// No provider duration reported: estimated at 1000 chars/minute.
	if res.DurationSeconds != 300 {
		t.Fatalf("duration = %v", res.DurationSeconds)
	}
	if ledger.used != 5000 {
		t.Fatalf("ledger used = %d", ledger.used)
	}
}

func TestSynthesizeDetectionFallback(t *testing.T) {
	ledger := newMemoryLedger()
	orch := newTestOrchestrator(t, ledger, &fakeProvider{audio: []byte("x")})

	// Digits classify into no supported language; the request hint wins.
	u := trialUser(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	res, err := orch.Synthesize(context.Background(), u, Request{Text: "1234567890", Fallback: LangSpanish})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Language != LangSpanish || res.VoiceID != "Conchita" {
		t.Fatalf("resolved %s/%s", res.Language, res.VoiceID)
	}

	// Without a hint the orchestrator default applies.
	res, err = orch.Synthesize(context.Background(), u, Request{Text: "1234567890"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Language != LangEnglish {
		t.Fatalf("language = %s", res.Language)
	}
}

func TestSynthesizeQuotaExceeded(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.used = 16000
	provider := &fakeProvider{audio: []byte("x")}
	orch := newTestOrchestrator(t, ledger, provider)

	_, err := orch.Synthesize(context.Background(), englishTrialUser(), Request{Text: strings.Repeat("a", 5000)})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("err = %v", err)
	}
	var quota *domain.QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("err %v is not a QuotaExceededError", err)
	}
	if quota.Remaining != 4000 {
		t.Fatalf("remaining = %d", quota.Remaining)
	}
	if ledger.used != 16000 || provider.calls.Load() != 0 {
		t.Fatalf("rejected request mutated state: used=%d calls=%d", ledger.used, provider.calls.Load())
	}
}

func TestSynthesizeNeuralRequiresPaid(t *testing.T) {
	ledger := newMemoryLedger()
	orch := newTestOrchestrator(t, ledger, &fakeProvider{audio: []byte("x")})

	_, err := orch.Synthesize(context.Background(), englishTrialUser(), Request{
		Text:    "hello there",
		Quality: domain.QualityNeural,
	})
	if !errors.Is(err, domain.ErrQualityNotPermitted) {
		t.Fatalf("err = %v", err)
	}
	if ledger.reserveCalls != 0 {
		t.Fatal("entitlement failure must not touch the ledger")
	}

	paid := paidUser()
	paid.Settings.Language = "en"
	res, err := orch.Synthesize(context.Background(), paid, Request{
		Text:    "hello there",
		Quality: domain.QualityNeural,
	})
	if err != nil {
		t.Fatalf("paid neural: %v", err)
	}
	if res.VoiceID != "Joanna" {
		t.Fatalf("voice = %s", res.VoiceID)
	}
}

func TestSynthesizeTrialExpired(t *testing.T) {
	ledger := newMemoryLedger()
	orch := newTestOrchestrator(t, ledger, &fakeProvider{audio: []byte("x")})

	u := trialUser(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) // 9 days before test clock
	u.Settings.Language = "en"
	_, err := orch.Synthesize(context.Background(), u, Request{Text: "hello"})
	if !errors.Is(err, domain.ErrNotEntitled) {
		t.Fatalf("err = %v", err)
	}
	if ledger.reserveCalls != 0 {
		t.Fatal("expired trial must not touch the ledger")
	}
}

func TestSynthesizeInputValidation(t *testing.T) {
	ledger := newMemoryLedger()
	orch := newTestOrchestrator(t, ledger, &fakeProvider{audio: []byte("x")})
	user := englishTrialUser()

	_, err := orch.Synthesize(context.Background(), user, Request{Text: ""})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty text err = %v", err)
	}

	_, err = orch.Synthesize(context.Background(), user, Request{Text: strings.Repeat("a", MaxTextCharacters+1)})
	if !errors.Is(err, domain.ErrTextTooLong) || !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("oversize err = %v", err)
	}

	_, err = orch.Synthesize(context.Background(), user, Request{Text: "hello", Language: "ja"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unsupported language err = %v", err)
	}

	if ledger.reserveCalls != 0 {
		t.Fatal("validation failures must not touch the ledger")
	}
}

func TestSynthesizeProviderFailureReleases(t *testing.T) {
	ledger := newMemoryLedger()
	provider := &fakeProvider{err: &ProviderError{Transient: true, Status: 503, Err: errors.New("throttled")}}
	orch := newTestOrchestrator(t, ledger, provider)

	_, err := orch.Synthesize(context.Background(), englishTrialUser(), Request{Text: strings.Repeat("a", 3000)})
	if !errors.Is(err, domain.ErrProviderTransient) {
		t.Fatalf("err = %v", err)
	}
	if ledger.used != 0 || ledger.requests != 0 {
		t.Fatalf("reservation not released: used=%d requests=%d", ledger.used, ledger.requests)
	}

	provider.err = &ProviderError{Err: errors.New("invalid voice")}
	_, err = orch.Synthesize(context.Background(), englishTrialUser(), Request{Text: "hello"})
	if !errors.Is(err, domain.ErrProviderPermanent) {
		t.Fatalf("permanent err = %v", err)
	}
	if ledger.used != 0 {
		t.Fatalf("used = %d after permanent failure", ledger.used)
	}
}

func TestSynthesizeReleaseFailureSurfaces(t *testing.T) {
	ledger := newMemoryLedger()
	releaseErr := errors.New("ledger down")
	ledger.releaseErr = releaseErr
	provider := &fakeProvider{err: &ProviderError{Transient: true, Err: errors.New("timeout")}}
	orch := newTestOrchestrator(t, ledger, provider)

	_, err := orch.Synthesize(context.Background(), englishTrialUser(), Request{Text: "hello"})
	if !errors.Is(err, releaseErr) {
		t.Fatalf("err = %v, want the release failure", err)
	}
}

func TestSynthesizeCancelledRequestStillReleases(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.releaseCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{
		onCall: func(context.Context) { cancel() },
		err:    &ProviderError{Transient: true, Err: context.Canceled},
	}
	orch := newTestOrchestrator(t, ledger, provider)

	_, err := orch.Synthesize(ctx, englishTrialUser(), Request{Text: "hello"})
	if !errors.Is(err, domain.ErrProviderTransient) {
		t.Fatalf("err = %v", err)
	}
	// The compensating release ran on a context detached from the cancelled
	// request, so the charge is gone.
	if ledger.used != 0 {
		t.Fatalf("used = %d after cancelled request", ledger.used)
	}
}

func TestSynthesizeConcurrentAdmission(t *testing.T) {
	ledger := newMemoryLedger()
	provider := &fakeProvider{audio: []byte("x")}
	orch := newTestOrchestrator(t, ledger, provider)
	user := englishTrialUser()
	text := strings.Repeat("a", 3000)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Synthesize(context.Background(), user, Request{Text: text})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrQuotaExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// 20000-character budget fits exactly six 3000-character requests.
	if admitted != 6 || rejected != 14 {
		t.Fatalf("admitted=%d rejected=%d", admitted, rejected)
	}
	if ledger.used != 18000 {
		t.Fatalf("used = %d", ledger.used)
	}
}
