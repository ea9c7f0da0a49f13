// Package web provides an HTTP status server for the led-sync daemon.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/led-sync/internal/status"
)

// DefaultPushInterval is how often /ws clients receive a status frame.
const DefaultPushInterval = time.Second

// Server serves the status page, JSON status and a live websocket feed.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        *slog.Logger

	pushEvery time.Duration

	// closed on Shutdown so websocket streams end with the server.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		tracker:   tracker,
		log:       logger.With("component", "web"),
		pushEvery: DefaultPushInterval,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mw := &middleware{log: s.log}

	r := chi.NewRouter()
	r.Use(mw.requestID, mw.logger)
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/ws", s.handleWS)
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown ends websocket streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		loggerFrom(r.Context(), s.log).Warn("render status page", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
