package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/config"
)

// Settings holds process level settings that are not part of the chunkstore configuration.
type Settings struct {
	EnvPrefix      string        `env:"CHUNKSTORE_ENV_PREFIX" env-default:""`
	LogLevel       string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat      string        `env:"LOG_FORMAT" env-default:"text"`
	ListingTempDir string        `env:"LISTING_TEMP_DIR"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"10m"`
}

func main() {
	_ = godotenv.Load()

	var settings Settings
	if err := cleanenv.ReadEnv(&settings); err != nil {
		slog.Error("Failed to read settings", "err", err)
		os.Exit(1)
	}

	logger := newLogger(settings)
	slog.SetDefault(logger)

	serverConfig, err := config.Load(
		config.WithEnv(settings.EnvPrefix),
		config.WithLogger(logger),
	)
	if err != nil {
		logger.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := serverConfig.BuildService(ctx)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	server := NewHTTPServer(svc, serverConfig, settings, logger)

	httpServer := &http.Server{
		Addr:    ":" + serverConfig.Port,
		Handler: server.Routes(),
	}

	go func() {
		logger.Info("Chunkstore server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"storage", serverConfig.DefaultStorageBackend,
			"catalog", serverConfig.DatabaseType,
			"max_chunk_size", serverConfig.MaxChunkSize)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

func newLogger(settings Settings) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if settings.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
