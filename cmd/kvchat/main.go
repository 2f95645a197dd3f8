package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/kvchat/internal/app"
	"github.com/antoniostano/kvchat/internal/config"
	"github.com/antoniostano/kvchat/internal/observability"
)

func main() {
	envFile := os.Getenv("APP_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	loaded, envErr := config.LoadEnvFile(envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	observability.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Warn().Err(envErr).Str("path", envFile).Msg("env file not loaded")
	} else if loaded {
		log.Info().Str("path", envFile).Msg("env file loaded")
	}

	ctx := context.Background()
	built, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build failed")
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	for _, c := range []app.ComponentStatus{built.StoreStatus, built.ModelStatus} {
		log.Info().Str("component", c.Name).Str("status", c.Status).Str("detail", c.Detail).Msg("component initialized")
	}

	if err := built.RegisterWebhook(ctx); err != nil {
		log.Warn().Err(err).Msg("webhook registration failed; keeping the existing registration")
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown does not touch hijacked websocket conns; ending the hub closes live feeds.
	httpServer.RegisterOnShutdown(built.Events.Close)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Str("webhook_path", cfg.WebhookPath).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
