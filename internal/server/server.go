package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
	"github.com/alanyoungcy/marketcore/internal/server/middleware"
	"github.com/alanyoungcy/marketcore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	RatePerMinute int    // per-client-IP API rate limit; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
	Pool    *handler.PoolHandler
	Book    *handler.BookHandler
	Seeds   *handler.SeedHandler
}

// Server is the headless HTTP + WebSocket API over the accounting core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health and status (no auth required for health).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market registry.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/settle", handlers.Markets.Settle)
	mux.HandleFunc("POST /api/creators", handlers.Markets.AuthorizeCreator)
	mux.HandleFunc("DELETE /api/creators/{account}", handlers.Markets.RevokeCreator)

	// Settlement archive exports.
	mux.HandleFunc("GET /api/archives", handlers.Markets.ListArchives)
	mux.HandleFunc("GET /api/archives/{path...}", handlers.Markets.GetArchive)

	// AMM pool.
	mux.HandleFunc("POST /api/markets/{id}/liquidity", handlers.Pool.AddLiquidity)
	mux.HandleFunc("DELETE /api/markets/{id}/liquidity", handlers.Pool.RemoveLiquidity)
	mux.HandleFunc("POST /api/markets/{id}/trade", handlers.Pool.Trade)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Pool.Quote)
	mux.HandleFunc("POST /api/markets/{id}/redeem", handlers.Pool.Redeem)
	mux.HandleFunc("GET /api/markets/{id}/positions", handlers.Pool.Positions)

	// Order book.
	mux.HandleFunc("POST /api/orders", handlers.Book.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Book.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Book.CancelOrder)
	mux.HandleFunc("GET /api/markets/{id}/book", handlers.Book.OrderBook)
	mux.HandleFunc("GET /api/markets/{id}/best", handlers.Book.BestBids)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Book.Claim)

	// Seeding auctions.
	mux.HandleFunc("POST /api/auctions", handlers.Seeds.OpenAuction)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Seeds.GetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/commit", handlers.Seeds.CommitBid)
	mux.HandleFunc("POST /api/auctions/{id}/reveal", handlers.Seeds.RevealBid)
	mux.HandleFunc("POST /api/auctions/{id}/finalize", handlers.Seeds.FinalizeAuction)
	mux.HandleFunc("GET /api/auctions/{id}/result", handlers.Seeds.GetAuctionResult)

	// Public launches.
	mux.HandleFunc("POST /api/launches", handlers.Seeds.OpenLaunch)
	mux.HandleFunc("GET /api/launches/{id}", handlers.Seeds.GetLaunch)
	mux.HandleFunc("POST /api/launches/{id}/commit", handlers.Seeds.CommitLaunch)
	mux.HandleFunc("POST /api/launches/{id}/graduate", handlers.Seeds.Graduate)
	mux.HandleFunc("POST /api/launches/{id}/claim", handlers.Seeds.ClaimVested)
	mux.HandleFunc("POST /api/launches/{id}/expire", handlers.Seeds.ExpireLaunch)
	mux.HandleFunc("GET /api/launches/{id}/commitments/{participant}", handlers.Seeds.GetLaunchCommitment)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client-IP rate limiting when a limiter is available.
	if limiter != nil && cfg.RatePerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RatePerMinute, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
