package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/pagewatch/internal/config"
	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/session"
)

// Library is the part of the summarizer's document API the server proxies.
type Library interface {
	ListDocuments(ctx context.Context) ([]document.Metadata, error)
	DeleteDocument(ctx context.Context, id int64) error
	FileURL(id int64, page int) string
}

// Server is the local HTTP API for pagewatch.
type Server struct {
	router   chi.Router
	sessions *session.Controller
	library  Library
	hub      *Hub
	log      *slog.Logger
	cfg      config.Config

	// baseCtx bounds sessions started over HTTP; a request context ends
	// when the handler returns.
	baseCtx     context.Context
	unsubscribe func()
}

// NewServer creates and configures the HTTP server. Sessions started
// through it run until ctx is done.
func NewServer(ctx context.Context, sessions *session.Controller, library Library, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: sessions,
		library:  library,
		hub:      NewHub(cfg.WSWriteTimeout, log),
		log:      log,
		cfg:      cfg,
		baseCtx:  ctx,
	}
	s.unsubscribe = sessions.Subscribe(s.hub)
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects WebSocket clients and stops observing the controller.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/session", s.handleStartSession)
		r.Get("/api/session", s.handleGetSession)
		r.Delete("/api/session", s.handleCancelSession)
		r.Get("/api/session/pages/{pageNum}", s.handleGetPage)
		r.Get("/api/session/ws", s.handleSessionWS)
		r.Get("/api/stats/stream", s.handleStreamStats)

		r.Get("/api/documents", s.handleListDocuments)
		r.Post("/api/documents/{docID}/load", s.handleLoadDocument)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
		r.Get("/api/documents/{docID}/file", s.handleDocumentFile)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
