package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// NewRouter mounts /status and, when metrics is non-nil, /metrics.
func NewRouter(source StatusSource, metrics http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/status", NewStatusHandler(source, logger).Routes())
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// Server is the local status endpoint.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates the server; it does not listen until Start.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "status_server")),
	}
}

// Start serves in the background. Serve errors are logged; the worker
// keeps running without the endpoint.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.logger.InfoContext(ctx, "Status endpoint listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorContext(ctx, "Status endpoint error", slog.String("error", err.Error()))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown error: %w", err)
	}
	return nil
}
