// Package server provides the HTTP and WebSocket API for the GraphRAG backend.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/graphrag/internal/config"
	"github.com/hyperjump/graphrag/internal/models"
	"github.com/hyperjump/graphrag/internal/storage"
	"github.com/hyperjump/graphrag/internal/stream"
)

// Searcher runs a full provider search for the request/response endpoint.
type Searcher interface {
	Search(ctx context.Context, query string, tag string) ([]models.SearchResult, error)
}

// Server is the HTTP server for the GraphRAG API.
type Server struct {
	searcher Searcher
	sessions *stream.Controller
	storage  storage.HistoryStore
	config   *config.ServerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	searcher Searcher,
	sessions *stream.Controller,
	store storage.HistoryStore,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		searcher: searcher,
		sessions: sessions,
		storage:  store,
		config:   cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect, as with the CORS policy below.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Long-lived; must not sit behind Timeout or Compress.
	r.Get("/api/ws/stream/{session_id}", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/query", s.handleQuery)
		r.Get("/api/history", s.handleHistory)
		r.Get("/health", s.handleHealth)
		r.Get("/", s.handleRoot)
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.StaticDir))))
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("history_store", string(s.storage.Mode())))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
