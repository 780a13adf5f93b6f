// Package server exposes the dashboard views over HTTP as JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server serves one engine. The engine's bundle never changes while serving.
type Server struct {
	engine *dashboard.Engine
	router *mux.Router
}

// New builds the router for engine.
func New(engine *dashboard.Engine) *Server {
	s := &Server{engine: engine, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/datasets", s.datasets).Methods(http.MethodGet)
	api.HandleFunc("/overview", s.overview).Methods(http.MethodGet)
	api.HandleFunc("/panels", s.panels).Methods(http.MethodGet)
	api.HandleFunc("/panels/{id}", s.panel).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{dataset}/aggregate", s.aggregate).Methods(http.MethodGet)
	api.HandleFunc("/metrics/{dataset}/sources", s.sources).Methods(http.MethodGet)
	api.HandleFunc("/bmi", s.bmi).Methods(http.MethodGet)
	api.HandleFunc("/energy", s.energy).Methods(http.MethodGet)
	api.HandleFunc("/sleep", s.sleep).Methods(http.MethodGet)
	api.HandleFunc("/correlate", s.correlate).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		renderError(w, fmt.Errorf("no route for %s", req.URL.Path), http.StatusNotFound)
	})
}

// Handler returns the router wrapped in recovery and access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	h = handlers.CompressHandler(h)
	return handlers.CombinedLoggingHandler(logger.Writer(), h)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("dashboard API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down dashboard API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
