package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"speechd/internal/adapter/repo"
	"speechd/internal/http/handlers"
	httpapi "speechd/internal/http/httpapi"
	"speechd/internal/infra"
	"speechd/internal/infra/geoip"
	"speechd/internal/middleware"
	"speechd/internal/providers/speech"
	"speechd/internal/tts"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	detector := tts.NewDetector()
	voices, err := tts.NewVoiceTable()
	if err != nil {
		logger.Fatal().Err(err).Msg("voice table incomplete")
	}

	var provider tts.Provider
	switch cfg.SpeechProvider {
	case "openai":
		provider, err = speech.NewOpenAIProvider(speech.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
	default:
		provider, err = speech.NewPollyProvider(ctx, cfg.AWSRegion)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.SpeechProvider).Msg("failed to build speech provider")
	}

	ledger := repo.NewUsageLedger(dbpool)
	users := repo.NewUserRepository(dbpool)

	orch, err := tts.NewOrchestrator(tts.OrchestratorOptions{
		Ledger:          ledger,
		Provider:        provider,
		Detector:        detector,
		Voices:          voices,
		DefaultLanguage: tts.Language(cfg.DefaultLanguage),
		ProviderTimeout: cfg.ProviderTimeout,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	supported := make([]string, 0, len(tts.SupportedLanguages))
	for _, l := range tts.SupportedLanguages {
		supported = append(supported, string(l))
	}

	app := handlers.NewApp(users, ledger, orch, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:          cfg.JWTSecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMin:    cfg.RateLimitPerMin,
		DefaultLanguage:    cfg.DefaultLanguage,
		SupportedLanguages: supported,
		CountryLookup:      lookup,
		Logger:             logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
