package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/graphrag/internal/models"
	"github.com/hyperjump/graphrag/internal/stream"
)

const (
	serviceName     = "GraphRAG Backend"
	maxHistoryLimit = 100
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.respondError(w, http.StatusBadRequest, verr.Message)
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("processing query", zap.String("query", req.Query), zap.String("provider", string(req.Provider())))

	results, err := s.searcher.Search(r.Context(), req.Query, req.SearchType)
	if err != nil {
		s.logger.Error("query failed", zap.String("query", req.Query), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error processing query: "+err.Error())
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	if err := s.storage.Save(r.Context(), req.Query, results, ""); err != nil {
		s.logger.Error("failed to persist query history", zap.String("query", req.Query), zap.Error(err))
	}

	s.logger.Info("query processed", zap.Int("results", len(results)))
	s.respondJSON(w, http.StatusOK, models.QueryResponse{
		Query:     req.Query,
		Results:   results,
		Timestamp: time.Now(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		s.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	ch := stream.NewWebSocketChannel(conn)
	defer ch.Close()

	state := s.sessions.Serve(r.Context(), sessionID, ch)
	s.logger.Debug("stream session finished", zap.String("session_id", sessionID), zap.String("state", string(state)))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	entries, err := s.storage.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("history lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Error retrieving query history: "+err.Error())
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(s.config.StaticDir, "index.html")
	if info, err := os.Stat(index); err == nil && !info.IsDir() {
		http.ServeFile(w, r, index)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": serviceName + " is running!", "status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
