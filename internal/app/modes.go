package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketcore/internal/server"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
	"github.com/alanyoungcy/marketcore/internal/server/ws"
	"github.com/alanyoungcy/marketcore/internal/service"
)

// archiveInterval is how often the archive loop exports settled markets.
const archiveInterval = 24 * time.Hour

// services bundles the service layer built on top of the wired dependencies.
type services struct {
	markets *service.MarketService
	pool    *service.PoolService
	book    *service.BookService
	seeds   *service.SeedService
}

// ServerMode runs the HTTP + WebSocket API over the accounting engines.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// FullMode runs the API server plus the background archive loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// buildServices constructs the service layer shared by both modes.
func (a *App) buildServices(deps *Dependencies) *services {
	return &services{
		markets: service.NewMarketService(
			deps.Ledger, deps.MarketStore, deps.MarketCache, deps.LockManager,
			deps.SignalBus, deps.AuditStore, deps.Notifier, deps.BlobReader,
			a.logger,
		),
		pool: service.NewPoolService(
			deps.Pool, deps.Ledger, deps.MarketStore, deps.PositionStore,
			deps.MarketCache, deps.SignalBus, deps.AuditStore, a.logger,
		),
		book: service.NewBookService(
			deps.Book, deps.OrderStore, deps.FillStore, deps.BookCache,
			deps.RateLimiter, deps.SignalBus, deps.AuditStore,
			a.cfg.Server.RatePerMinute, a.logger,
		),
		seeds: service.NewSeedService(
			deps.Auctions, deps.Launches, deps.Ledger, deps.MarketStore,
			deps.MarketCache, deps.SignalBus, deps.AuditStore, deps.Notifier,
			a.logger,
		),
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	startedAt := time.Now().UTC()
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, startedAt),
		Markets: handler.NewMarketHandler(svcs.markets, a.logger),
		Pool:    handler.NewPoolHandler(svcs.pool, a.logger),
		Book:    handler.NewBookHandler(svcs.book, a.logger),
		Seeds:   handler.NewSeedHandler(svcs.seeds, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		RatePerMinute: a.cfg.Server.RatePerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runArchiveLoop exports settled markets older than the retention window to
// cold storage once per interval.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	runOnce := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
		count, err := deps.Archiver.ArchiveSettled(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: export failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if count > 0 {
			a.logger.InfoContext(ctx, "archive: exported settled markets",
				slog.Int64("count", count),
				slog.Time("cutoff", cutoff),
			)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}
