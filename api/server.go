// Package api - Thin HTTP layer over the allocation engine
// The API is ONLY responsible for: input ingestion, engine orchestration, output serialization.
// The API NEVER performs allocation logic.
package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/engine"
	"hospital-abc/internal/errors"
	"hospital-abc/internal/logging"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 10 << 20

// Server is the API server
type Server struct {
	mux     *http.ServeMux
	version string
	store   storage.Store
	opts    engine.Options
	logger  *zap.Logger
}

// NewServer creates a new API server. Runs are persisted to store; a nil
// store keeps them in memory for the life of the server.
func NewServer(version string, store storage.Store, opts engine.Options, logger *zap.Logger) *Server {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		version: version,
		store:   store,
		opts:    opts,
		logger:  logging.OrNop(logger).Named("api"),
	}

	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("POST /runs", s.handleRun)
	s.mux.HandleFunc("POST /validate", s.handleValidate)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Stored runs
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)
	s.mux.HandleFunc("GET /runs/{id}/explain/{entity}", s.handleExplain)
	s.mux.HandleFunc("GET /compare", s.handleCompare)

	// Supporting endpoints
	s.mux.HandleFunc("GET /version", s.handleVersion)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":     s.version,
		"engine":      "hospital-abc",
		"api_version": "v1",
	}, http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code, message string, status int) {
	s.writeJSON(w, map[string]interface{}{
		"error": ErrorDetail{Code: code, Message: message},
	}, status)
}

// writeFailure maps a typed error onto a status code
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.IsType(err, errors.TypeNotFound):
		s.writeError(w, "NOT_FOUND", errors.Detail(err), http.StatusNotFound)
	case errors.IsType(err, errors.TypeValidation), errors.IsType(err, errors.TypeConfig):
		s.writeError(w, "VALIDATION_ERROR", errors.Detail(err), http.StatusBadRequest)
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Helper functions

func computeInputHash(req *RunRequest) string {
	data, _ := json.Marshal(req)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func generateRequestID() string {
	return uuid.NewString()
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Newf(errors.TypeValidation, "%s must be a non-negative integer", key)
	}
	return n, nil
}
