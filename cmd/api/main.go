package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"promptpix/internal/genai"
	"promptpix/internal/history"
	"promptpix/internal/http/handlers"
	httpapi "promptpix/internal/http/httpapi"
	"promptpix/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, cleanup, err := newHistoryBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("history backend init failed")
	}
	defer cleanup()

	histLogger := logger.With().Str("component", "history").Logger()
	store := history.NewStore(backend, &histLogger)
	if err := store.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("history load failed")
	}

	genaiLogger := logger.With().Str("component", "genai").Logger()
	svc, err := genai.NewClient(genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		PromptModel: cfg.PromptModel,
		RatingModel: cfg.RatingModel,
		ImageModel:  cfg.ImageModel,
		Logger:      &genaiLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini client init failed")
	}

	app := handlers.NewApp(handlers.Options{
		Service:        svc,
		History:        store,
		Logger:         logger,
		RatingDebounce: cfg.RatingDebounce,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newHistoryBackend selects the persistence medium from configuration and
// returns a cleanup func closing whatever it opened.
func newHistoryBackend(ctx context.Context, cfg *infra.Config) (history.Backend, func(), error) {
	noop := func() {}
	switch cfg.HistoryBackend {
	case infra.HistoryBackendFile:
		b, err := history.NewFileBackend(cfg.HistoryPath)
		return b, noop, err
	case infra.HistoryBackendMemory:
		return history.NewMemoryBackend(), noop, nil
	case infra.HistoryBackendRedis:
		b, err := history.NewRedisBackend(ctx, cfg.RedisURL, "promptpix")
		if err != nil {
			return nil, noop, err
		}
		return b, func() { _ = b.Close() }, nil
	case infra.HistoryBackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		b, err := history.NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		return b, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}
