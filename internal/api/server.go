// Package api exposes the controller's read-only status over a small
// JSON API for the `serve` subcommand.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nordctl/internal/controller"
	"nordctl/internal/settings"
	"nordctl/internal/version"
)

type statusProvider interface {
	Status(ctx context.Context) (controller.Status, error)
}

// Server handles the status API requests.
type Server struct {
	status    statusProvider
	bundleDir string
	settings  *settings.Manager
}

// New creates a status API server.
func New(status statusProvider, bundleDir string, settingsManager *settings.Manager) *Server {
	return &Server{
		status:    status,
		bundleDir: bundleDir,
		settings:  settingsManager,
	}
}

// Router constructs the http.Handler with all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.requirePassword)

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Get("/servers", s.handleServers)
		api.Get("/version", s.handleVersion)
	})
	return r
}

// ListenAndServe runs the API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	names, err := listLocalServers(s.bundleDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"servers": names})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}
