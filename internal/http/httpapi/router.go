package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"speechd/internal/http/handlers"
	"speechd/internal/middleware"
)

// Options carries the cross-cutting wiring the router needs.
type Options struct {
	JWTSecret          string
	AllowedOrigins     []string
	RateLimitPerMin    int
	DefaultLanguage    string
	SupportedLanguages []string
	CountryLookup      middleware.CountryLookup
	Logger             zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(opts.JWTSecret),
			middleware.FallbackLanguage(opts.DefaultLanguage, opts.SupportedLanguages, opts.CountryLookup),
		)
		r.Get("/me", app.Me)
		r.Post("/tts/synthesize", app.TTSSynthesize)
		r.Get("/tts/usage", app.TTSUsage)
	})

	return r
}
