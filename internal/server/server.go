// Package server exposes the aggregation engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/server/handler"
	"github.com/alanyoungcy/yieldagg/internal/server/middleware"
	"github.com/alanyoungcy/yieldagg/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	AuthMaxSkew time.Duration

	// ReplayGuard rejects reused admin signatures. Nil keeps them in memory.
	ReplayGuard domain.ReplayGuard
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Portfolio *handler.PortfolioHandler
	Snapshots *handler.SnapshotHandler
	Prices    *handler.PriceHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain
// CORS, logging, rate limiting. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      newHandler(cfg, handlers, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	signed := middleware.SignatureAuth(cfg.AuthMaxSkew, nil, cfg.ReplayGuard)
	admin := func(f http.HandlerFunc) http.Handler { return signed(f) }

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/positions", handlers.Portfolio.ListPositions)
	mux.HandleFunc("GET /api/portfolio", handlers.Portfolio.GetSummary)
	mux.HandleFunc("GET /api/portfolio/breakdown", handlers.Portfolio.GetBreakdown)

	mux.HandleFunc("POST /api/portfolio/snapshot", handlers.Snapshots.TakeSnapshot)
	mux.HandleFunc("GET /api/portfolio/snapshot/{id}", handlers.Snapshots.GetSnapshot)
	mux.HandleFunc("GET /api/portfolio/history", handlers.Snapshots.ListHistory)

	mux.HandleFunc("GET /api/prices/{token}", handlers.Prices.GetPrice)
	mux.HandleFunc("GET /api/config", handlers.Admin.GetConfig)

	mux.Handle("PUT /api/admin/price-feeds", admin(handlers.Admin.SetPriceFeed))
	mux.Handle("PUT /api/admin/protocols", admin(handlers.Admin.SetProtocols))
	mux.Handle("PUT /api/admin/enabled", admin(handlers.Admin.SetEnabled))
	mux.Handle("PUT /api/admin/cache-duration", admin(handlers.Admin.SetCacheDuration))
	mux.Handle("POST /api/admin/ownership/transfer", admin(handlers.Admin.TransferOwnership))
	mux.Handle("POST /api/admin/ownership/renounce", admin(handlers.Admin.RenounceOwnership))
	mux.Handle("GET /api/admin/audit", admin(handlers.Admin.ListAudit))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
