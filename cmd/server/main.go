package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/wattsync/internal/config"
	"github.com/prudhvinik1/wattsync/internal/database"
	"github.com/prudhvinik1/wattsync/internal/handlers"
	"github.com/prudhvinik1/wattsync/internal/repositories"
	"github.com/prudhvinik1/wattsync/internal/services"
	"github.com/prudhvinik1/wattsync/internal/storage"
	"github.com/prudhvinik1/wattsync/internal/watch"
	"github.com/rs/zerolog"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create postgres pool")
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create redis client")
	}
	defer redisClient.Close()

	firmwareStore, err := storage.NewFirmwareStore(
		cfg.MinioEndpoint,
		cfg.MinioAccessKey,
		cfg.MinioSecretKey,
		cfg.MinioBucket,
		cfg.MinioUseSSL,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create firmware store")
	}

	// Repositories
	deviceRepo := repositories.NewPostgresDeviceRepository(postgresPool)
	voteRepo := repositories.NewPostgresVoteRepository(postgresPool)
	sessionRepo := repositories.NewPostgresResetSessionRepository(postgresPool)
	profileRepo := repositories.NewPostgresProfileRepository(postgresPool)
	statusRepo := repositories.NewRedisOTAStatusRepository(redisClient)
	presenceRepo := repositories.NewRedisPresenceRepository(redisClient)

	// Services
	hub := watch.NewHub(redisClient, logger)
	resetService := services.NewResetVoteService(deviceRepo, voteRepo, sessionRepo, profileRepo, cfg.ResetSessionTTL, logger)
	otaService := services.NewOTAService(firmwareStore, statusRepo, presenceRepo, hub, logger)
	tokenService := services.NewTokenService(cfg.JWTSecret)

	handler := handlers.New(resetService, otaService, tokenService, deviceRepo, presenceRepo, logger)

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler.Routes(),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info().Str("port", cfg.ServerPort).Msg("starting server")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}

	logger.Info().Msg("server stopped gracefully")
}
