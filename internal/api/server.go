// Package api provides the read-only HTTP query API over the ledger.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/amm-analytics/internal/circuitbreaker"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/logging"
	"github.com/amm-analytics/internal/service"
	"github.com/amm-analytics/internal/worker"
)

// EngineStats exposes the engine's counters
type EngineStats interface {
	Stats() service.Stats
	Performance() *service.PerformanceStats
}

// WorkerStatus exposes the sync worker's progress
type WorkerStatus interface {
	GetStatus() *worker.SyncWorkerStatus
}

// BreakerStats exposes the RPC circuit breaker
type BreakerStats interface {
	GetStats() *circuitbreaker.Stats
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      ledger.Store
	engine     EngineStats
	worker     WorkerStatus
	breaker    BreakerStats
	factoryID  string
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int // Per client address
	Burst             int
}

// DefaultServerConfig returns the defaults used by the indexer
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:              host,
		Port:              port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: 20,
		Burst:             40,
	}
}

// ServerDeps wires the server's data sources. Worker and Breaker are optional.
type ServerDeps struct {
	Store     ledger.Store
	FactoryID string
	Engine    EngineStats
	Worker    WorkerStatus
	Breaker   BreakerStats
	Logger    *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:    mux.NewRouter(),
		store:     deps.Store,
		engine:    deps.Engine,
		worker:    deps.Worker,
		breaker:   deps.Breaker,
		factoryID: strings.ToLower(deps.FactoryID),
		config:    config,
		logger:    logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// order matters
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/bundle", s.handleGetBundle).Methods("GET")
	api.HandleFunc("/factory", s.handleGetFactory).Methods("GET")
	api.HandleFunc("/tokens/{id}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/pairs/{id}", s.handleGetPair).Methods("GET")
	api.HandleFunc("/transactions/{hash}", s.handleGetTransaction).Methods("GET")
	api.HandleFunc("/positions/{pair}/{user}", s.handleGetPosition).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
}

// Handler returns the routed handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "healthy",
		"service": "amm-analytics",
	}
	if s.breaker != nil && s.breaker.GetStats().State == circuitbreaker.StateOpen {
		status["status"] = "degraded"
		status["rpc"] = "circuit open"
	}
	respondJSON(w, http.StatusOK, status)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
