// Package web exposes the engine's polling HTTP API: sync configuration
// management, run control, progress snapshots, history and the merged feed
// export.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"clubsync/internal/logging"
	"clubsync/internal/sync"
)

// Server wraps chi plus the stdlib http.Server.
type Server struct {
	events  sync.EventStore
	configs sync.ConfigStore
	syncer  *sync.Syncer
	log     zerolog.Logger

	srv *http.Server
}

// NewServer wires the API over the store ports and the orchestrator.
func NewServer(addr string, events sync.EventStore, configs sync.ConfigStore, syncer *sync.Syncer) *Server {
	s := &Server{
		events:  events,
		configs: configs,
		syncer:  syncer,
		log:     logging.Named("web"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Route("/syncs", func(r chi.Router) {
			r.Post("/", s.handleCreateConfig)
			r.Get("/running", s.handleListRunning)
			r.Route("/{syncID}", func(r chi.Router) {
				r.Get("/", s.handleGetConfig)
				r.Patch("/", s.handleUpdateConfig)
				r.Delete("/", s.handleDeleteConfig)
				r.Post("/run", s.handleRun)
				r.Post("/cancel", s.handleCancel)
				r.Get("/status", s.handleStatus)
				r.Get("/history", s.handleHistory)
			})
		})
		r.Get("/activity", s.handleActivity)
		r.Get("/stats", s.handleStats)
		r.Route("/clubs/{clubID}", func(r chi.Router) {
			r.Get("/syncs", s.handleListConfigs)
			r.Get("/events", s.handleListEvents)
			r.Get("/feed.ics", s.handleFeed)
		})
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the server and blocks until it is shut down.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
