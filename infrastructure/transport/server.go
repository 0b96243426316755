// Package transport implements the optional HTTP admin surface: a small
// chi router exposing operational endpoints (queue depth, catalog
// composition, on-demand re-train and backup management) alongside the
// library's in-process API. It is never required for the library to
// function; cmd/visimatchd's serve command mounts it only when an
// operator wants remote visibility and control.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/toolcat/visimatch"
)

// AdminServer serves the HTTP admin surface over a visimatch.Client.
type AdminServer struct {
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	addr       string
}

// NewAdminServer builds the admin HTTP server. allowedOrigins configures
// CORS for browser-based admin tooling; apiKeys are the bearer-token
// signing keys accepted by every admin route.
func NewAdminServer(addr string, client *visimatch.Client, apiKeys []string, allowedOrigins []string, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	if len(allowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	h := &adminHandlers{client: client, logger: logger}
	auth := newAdminAuthenticator(apiKeys)

	router.Get("/healthz", h.health)
	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.requireAdmin)
		r.Get("/stats", h.stats)
		r.Post("/train", h.train)
		r.Get("/backups", h.listBackups)
		r.Post("/backups/{version}/restore", h.restoreBackup)
	})

	return &AdminServer{router: router, addr: addr, logger: logger}
}

// Router returns the underlying chi router, for tests that want to issue
// requests directly without binding a socket.
func (s *AdminServer) Router() chi.Router { return s.router }

// Start blocks serving HTTP until the server is shut down.
func (s *AdminServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting admin HTTP server", slog.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down admin HTTP server")
	return s.httpServer.Shutdown(ctx)
}
