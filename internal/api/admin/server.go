// Package admin serves API key management and runtime stats under /admin.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acme/petadoption/internal/api/middleware"
	"github.com/acme/petadoption/internal/core/domain"
)

// KeyManager creates, lists and revokes API keys.
type KeyManager interface {
	Create(ctx context.Context, ownerName string, level domain.AccessLevel, expiresAt *time.Time) (*domain.APIKey, error)
	List(ctx context.Context) ([]domain.APIKey, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router    *chi.Mux
	startTime time.Time
	keys      KeyManager
	storage   Pinger
	logger    *slog.Logger
}

func NewServer(keys KeyManager, storage Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		keys:      keys,
		storage:   storage,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/apikeys", s.handleListKeys)
	s.router.Post("/apikeys", s.handleCreateKey)
	s.router.Delete("/apikeys/{id}", s.handleDeleteKey)
	s.router.Get("/api/stats", s.handleStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Storage      string      `json:"storage"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	storage := "ok"
	if s.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.storage.Ping(ctx); err != nil {
			storage = "unavailable"
			middleware.AddError(r.Context(), err)
		}
	}

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Storage:      storage,
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	}

	writeJSON(w, http.StatusOK, stats)
}

// CreateKeyRequest is the body of POST /admin/apikeys.
type CreateKeyRequest struct {
	OwnerName   string             `json:"ownerName"`
	AccessLevel domain.AccessLevel `json:"accessLevel"`
	ExpiresAt   *time.Time         `json:"expiresAt,omitempty"`
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		s.serverError(w, r, "failed to list api keys", err)
		return
	}
	if keys == nil {
		keys = []domain.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key, err := s.keys.Create(r.Context(), req.OwnerName, req.AccessLevel, req.ExpiresAt)
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr.Response())
		return
	case err != nil:
		s.serverError(w, r, "failed to create api key", err)
		return
	}

	s.logger.Info("api key created",
		slog.Int64("id", key.ID),
		slog.String("owner", key.OwnerName),
		slog.String("access_level", key.AccessLevel.String()),
		slog.String("created_by", middleware.CurrentAPIKeyOwner(r.Context())))

	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "api key not found", http.StatusNotFound)
		return
	}

	removed, err := s.keys.DeleteByID(r.Context(), id)
	if err != nil {
		s.serverError(w, r, "failed to delete api key", err)
		return
	}
	if !removed {
		http.Error(w, "api key not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	middleware.AddError(r.Context(), err)
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
