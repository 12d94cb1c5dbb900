package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/api"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/config"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/listing"
)

// HTTPServer wraps the chunkstore service for HTTP access
type HTTPServer struct {
	service  chunkstore.Service
	config   *config.ServerConfig
	settings Settings
	logger   *slog.Logger
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(service chunkstore.Service, serverConfig *config.ServerConfig, settings Settings, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{
		service:  service,
		config:   serverConfig,
		settings: settings,
		logger:   logger,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(api.RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(api.LoggingMiddleware(s.logger))
	r.Use(api.RecoveryMiddleware(s.logger))
	if s.settings.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.settings.RequestTimeout))
	}

	// CORS for development
	if s.config.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/spaces", s.chunkHandler().Routes())
		r.Get("/config", s.handleGetConfig)
	})

	return r
}

func (s *HTTPServer) chunkHandler() *api.ChunkHandler {
	formatters := listing.NewFormatters()
	manifests := chunkstore.NewStitcher(s.service.Store(), chunkstore.WithStitcherLogger(s.logger))
	listings := listing.NewStitcher(
		listing.NewStoreSource(s.service.Store(), formatters),
		manifests,
		formatters,
		listing.WithLogger(s.logger),
		listing.WithTempDir(s.settings.ListingTempDir),
	)
	return api.NewChunkHandler(s.service, listings, s.logger)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":          "healthy",
		"environment":     s.config.Environment,
		"default_storage": s.config.DefaultStorageBackend,
	})
}

func (s *HTTPServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	backends := make([]map[string]string, 0, len(s.config.StorageBackends))
	for _, backend := range s.config.StorageBackends {
		backends = append(backends, map[string]string{
			"name": backend.Name,
			"type": backend.Type,
		})
	}

	render.JSON(w, r, map[string]interface{}{
		"environment":      s.config.Environment,
		"max_chunk_size":   s.config.MaxChunkSize,
		"database_type":    s.config.DatabaseType,
		"default_storage":  s.config.DefaultStorageBackend,
		"storage_backends": backends,
	})
}
