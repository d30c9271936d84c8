// Package server provides the HTTP server and routing for QuantLens.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantlens/quantlens/internal/database"
	"github.com/quantlens/quantlens/internal/domain"
	"github.com/quantlens/quantlens/internal/modules/metrics"
	"github.com/quantlens/quantlens/internal/modules/portfolio"
)

// Config holds server configuration.
type Config struct {
	Log            zerolog.Logger
	Port           int
	DevMode        bool
	HistoryDB      *database.DB
	ConfigDB       *database.DB
	CacheDB        *database.DB
	MetricsHandler *metrics.Handler
	PortfolioRepo  *portfolio.Repository
}

// Server is the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	historyDB      *database.DB
	configDB       *database.DB
	cacheDB        *database.DB
	metricsHandler *metrics.Handler
	portfolioRepo  *portfolio.Repository
	started        time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		historyDB:      cfg.HistoryDB,
		configDB:       cfg.ConfigDB,
		cacheDB:        cfg.CacheDB,
		metricsHandler: cfg.MetricsHandler,
		portfolioRepo:  cfg.PortfolioRepo,
		started:        time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Get("/api/portfolios", s.handleListPortfolios)
	s.router.Post("/api/portfolios", s.handleCreatePortfolio)
	s.router.Get("/api/portfolios/{id}", s.handleGetPortfolio)

	s.metricsHandler.Routes(s.router)
}

// loggingMiddleware logs each request with zerolog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// handleHealth reports process and database health.
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	databases := map[string]string{}
	healthy := true
	for name, db := range map[string]*database.DB{
		"history": s.historyDB,
		"config":  s.configDB,
		"cache":   s.cacheDB,
	} {
		if db == nil {
			continue
		}
		if err := db.QuickCheck(ctx); err != nil {
			databases[name] = "unavailable"
			healthy = false
			continue
		}
		databases[name] = "ok"
	}

	memUsedPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memUsedPercent = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("Failed to read memory statistics")
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":           status,
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"databases":        databases,
		"goroutines":       runtime.NumGoroutine(),
		"mem_used_percent": memUsedPercent,
	})
}

// handleListPortfolios returns all portfolio definitions.
// GET /api/portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.portfolioRepo.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list portfolios")
		s.writeError(w, http.StatusInternalServerError, "failed to list portfolios")
		return
	}
	if portfolios == nil {
		portfolios = []domain.Portfolio{}
	}
	s.writeJSON(w, http.StatusOK, portfolios)
}

// handleGetPortfolio returns one portfolio with allocations.
// GET /api/portfolios/{id}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.portfolioRepo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "portfolio not found")
			return
		}
		s.log.Error().Err(err).Str("id", id).Msg("Failed to load portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleCreatePortfolio stores a new portfolio definition.
// POST /api/portfolios
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Allocations []struct {
			Symbol string  `json:"symbol"`
			Weight float64 `json:"weight"`
		} `json:"allocations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	allocations := make([]domain.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocations = append(allocations, domain.Allocation{Symbol: a.Symbol, Weight: a.Weight})
	}

	p, err := s.portfolioRepo.Create(r.Context(), req.Name, allocations)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
