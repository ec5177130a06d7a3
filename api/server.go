// Package api exposes the indexed quest data and the indexer's
// operational controls over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/quest-indexer/api/middleware"
	"github.com/0xmhha/quest-indexer/indexer"
	"github.com/0xmhha/quest-indexer/quest"
	"github.com/0xmhha/quest-indexer/storage"
	"github.com/0xmhha/quest-indexer/types"
)

// Store is the read surface the API serves from.
type Store interface {
	storage.QuestReader
	storage.ParticipationReader
}

// Server represents the API server
type Server struct {
	config  *Config
	logger  *zap.Logger
	store   Store
	indexer *indexer.Service
	router  *chi.Mux
	server  *http.Server
	clock   func() time.Time
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, store Store, svc *indexer.Service) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:  config,
		logger:  logger,
		store:   store,
		indexer: svc,
		router:  chi.NewRouter(),
		clock:   time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// SetClock overrides the server clock. Used by tests.
func (s *Server) SetClock(clock func() time.Time) {
	s.clock = clock
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(apimiddleware.Logger(s.logger))

	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, allowedOrigin := range s.config.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "300")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/indexer", func(r chi.Router) {
		r.Get("/status", s.handleIndexerStatus)
		r.Post("/polling/start", s.handlePollingStart)
		r.Post("/polling/stop", s.handlePollingStop)
		r.Post("/reindex", s.handleReindex)
	})

	s.router.Route("/quests", func(r chi.Router) {
		r.Get("/", s.handleListQuests)
		r.Get("/{id}", s.handleGetQuest)
		r.Get("/{id}/participations", s.handleQuestParticipations)
	})

	s.router.Get("/users/{address}/participations", s.handleUserParticipations)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: s.clock().Format(time.RFC3339),
	})
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"version":"1.0.0","name":"quest-indexer"}`)
}

// handleIndexerStatus returns the operational snapshot of the indexer.
func (s *Server) handleIndexerStatus(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, http.StatusNotFound, "indexer not configured")
		return
	}

	s.writeJSON(w, http.StatusOK, s.indexer.Status(r.Context()))
}

func (s *Server) handlePollingStart(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, http.StatusNotFound, "indexer not configured")
		return
	}

	var req struct {
		IntervalSeconds int64 `json:"intervalSeconds"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	s.indexer.StartPolling(context.Background(), time.Duration(req.IntervalSeconds)*time.Second)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "polling started"})
}

func (s *Server) handlePollingStop(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, http.StatusNotFound, "indexer not configured")
		return
	}

	s.indexer.StopPolling()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "polling stopped"})
}

// handleReindex rewinds the cursor and re-runs catch-up. Returns 409
// while a run is in flight.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeError(w, http.StatusNotFound, "indexer not configured")
		return
	}

	var req struct {
		FromBlock uint64 `json:"fromBlock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.indexer.ReindexFromBlock(r.Context(), req.FromBlock); err != nil {
		switch {
		case errors.Is(err, indexer.ErrBusy):
			s.writeError(w, http.StatusConflict, "indexer run already in progress")
		case errors.Is(err, indexer.ErrNotInitialized):
			s.writeError(w, http.StatusConflict, "indexer not initialized")
		default:
			s.logger.Error("reindex failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "reindex failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "reindex complete",
		"fromBlock": req.FromBlock,
	})
}

// QuestResponse is a quest together with its derived metrics.
type QuestResponse struct {
	Quest   *types.Quest   `json:"quest"`
	Metrics *quest.Metrics `json:"metrics,omitempty"`
}

// handleListQuests lists all quests, optionally filtered by status.
func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := s.store.ListQuests(r.Context())
	if err != nil {
		s.logger.Error("failed to list quests", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list quests")
		return
	}

	if filter := r.URL.Query().Get("status"); filter != "" {
		status := types.QuestStatus(filter)
		if !status.Valid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter))
			return
		}

		filtered := quests[:0]
		for _, q := range quests {
			if q.Status == status {
				filtered = append(filtered, q)
			}
		}
		quests = filtered
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"quests": quests,
		"count":  len(quests),
	})
}

// handleGetQuest returns one quest with its metrics computed at request
// time. The stored status may lag the poll interval; the metrics never do.
func (s *Server) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	q, err := s.store.GetQuest(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("quest %s not found", id))
			return
		}
		s.logger.Error("failed to get quest", zap.String("quest_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get quest")
		return
	}

	metrics, err := quest.ComputeMetrics(q, s.clock())
	if err != nil {
		s.logger.Warn("failed to compute quest metrics",
			zap.String("quest_id", id),
			zap.Error(err),
		)
	}

	s.writeJSON(w, http.StatusOK, QuestResponse{Quest: q, Metrics: metrics})
}

func (s *Server) handleQuestParticipations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exists, err := s.store.HasQuest(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to check quest", zap.String("quest_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to check quest")
		return
	}
	if !exists {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("quest %s not found", id))
		return
	}

	parts, err := s.store.ListParticipationsByQuest(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list participations", zap.String("quest_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list participations")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"questId":        id,
		"participations": parts,
		"count":          len(parts),
	})
}

func (s *Server) handleUserParticipations(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid address %q", address))
		return
	}

	user := common.HexToAddress(address)
	parts, err := s.store.ListParticipationsByUser(r.Context(), user)
	if err != nil {
		s.logger.Error("failed to list user participations",
			zap.String("address", user.Hex()),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "failed to list participations")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"address":        user.Hex(),
		"participations": parts,
		"count":          len(parts),
	})
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("address", s.config.Address()))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
