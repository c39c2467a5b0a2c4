package server

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"spendshelf/internal/handlers"
	applog "spendshelf/internal/log"
	"spendshelf/internal/uploads"
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr      string
	Database  *gorm.DB
	UploadDir string
}

// Server wraps an http.Server and exposes helpers for bootstrapping a
// production-ready web service.
type Server struct {
	config     Config
	httpServer *http.Server
}

// New builds a new Server using the provided configuration.
func New(cfg Config) (*Server, error) {
	applog.Debug(context.Background(), "initializing server", "addr", cfg.Addr, "uploadDir", cfg.UploadDir)

	var store *uploads.Store
	if cfg.UploadDir != "" {
		var err error
		store, err = uploads.New(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
	}

	handlers.Configure(cfg.Database, store)
	applog.Debug(context.Background(), "handler dependencies configured")

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           newRouter(cfg.UploadDir),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Start begins serving HTTP traffic using the underlying http.Server.
func (s *Server) Start() error {
	applog.Debug(context.Background(), "server starting listener", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
