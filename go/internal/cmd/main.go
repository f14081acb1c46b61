package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, _ := cfg.level()
	zerolog.SetGlobalLevel(level)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStore, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup store")
	}
	defer closeStore()

	services, err := setupServices(ctx, cfg, repo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	services.Start(ctx)

	server := setupServer(cfg, services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.StoreDriver).
			Str("scoring_strategy", cfg.Scoring.Strategy).
			Str("relay_url", cfg.Relay.URL).
			Str("ergrace_url", cfg.ErgRace.URL).
			Msg("sync hub listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	cancel()
	services.Close()

	log.Info().Msg("shutdown complete")
}
