// Package service composes the accounting engines with persistence, caching,
// eventing and notifications. Engines are the source of truth; stores and
// caches are write-behind projections, so their failures are logged and
// non-fatal wherever the ledger has already applied the operation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
	"github.com/alanyoungcy/marketcore/internal/notify"
)

// settleLockTTL bounds how long the distributed settle lock may be held.
const settleLockTTL = 30 * time.Second

// archivePrefix is the cold-storage key space the archive read surface may
// touch. Everything else in the bucket is off limits.
const archivePrefix = "archive/"

// MarketService handles the market registry: creation, lookup, the
// creator capability set, settlement, and the archive read surface.
type MarketService struct {
	ledger   *market.Ledger
	markets  domain.MarketStore
	cache    domain.MarketInfoCache
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	archives domain.BlobReader // nil when archival is disabled
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// archives may be nil when archival is disabled; the archive endpoints then
// report not found.
func NewMarketService(
	ledger *market.Ledger,
	markets domain.MarketStore,
	cache domain.MarketInfoCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	archives domain.BlobReader,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger:   ledger,
		markets:  markets,
		cache:    cache,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		archives: archives,
		logger:   logger,
	}
}

// CreateMarket registers a new market with an initial reserve split pulled
// from the creator's collateral.
func (s *MarketService) CreateMarket(ctx context.Context, creator, question, oracle string, seedYes, seedNo int64, expiry time.Time) (domain.MarketInfo, error) {
	m, err := s.ledger.CreateMarket(creator, question, oracle, seedYes, seedNo, expiry)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.persistMarket(ctx, m)
	s.auditLog(ctx, "market.created", map[string]any{
		"market_id": m.ID,
		"creator":   creator,
		"seed_yes":  seedYes,
		"seed_no":   seedNo,
	})
	s.publish(ctx, "markets", map[string]string{
		"type":      "market_created",
		"market_id": m.ID,
	})
	return m.Info(), nil
}

// GetMarket retrieves a market read model, checking the cache first and
// falling back to the ledger on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.MarketInfo, error) {
	info, err := s.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}

	m, err := s.ledger.Get(id)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}
	info = m.Info()

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, info); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return info, nil
}

// ListMarkets returns the read models of every registered market.
func (s *MarketService) ListMarkets(ctx context.Context) []domain.MarketInfo {
	markets := s.ledger.List()
	infos := make([]domain.MarketInfo, 0, len(markets))
	for _, m := range markets {
		infos = append(infos, m.Info())
	}
	return infos
}

// Settle applies the one-shot outcome under a distributed lock so concurrent
// oracle retries across replicas collapse to a single transition.
func (s *MarketService) Settle(ctx context.Context, caller, id string, outcomeYes bool) (domain.MarketInfo, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+id, settleLockTTL)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: settle %q: %w", id, err)
	}
	defer unlock()

	m, err := s.ledger.Settle(caller, id, outcomeYes)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: settle %q: %w", id, err)
	}

	s.persistMarket(ctx, m)
	s.invalidate(ctx, id)
	s.auditLog(ctx, "market.settled", map[string]any{
		"market_id":   id,
		"outcome_yes": outcomeYes,
	})
	s.publish(ctx, "markets", map[string]string{
		"type":      "market_settled",
		"market_id": id,
	})

	outcome := "NO"
	if outcomeYes {
		outcome = "YES"
	}
	if err := s.notifier.Notify(ctx, "market_settled", "Market settled",
		fmt.Sprintf("%s resolved %s", m.Question, outcome)); err != nil {
		s.logger.WarnContext(ctx, "market_service: notify failed",
			slog.String("error", err.Error()),
		)
	}
	return m.Info(), nil
}

// AuthorizeCreator grants an account the market-creation capability.
func (s *MarketService) AuthorizeCreator(ctx context.Context, caller, account string) error {
	if err := s.ledger.AuthorizeCreator(caller, account); err != nil {
		return fmt.Errorf("market_service: authorize creator: %w", err)
	}
	s.auditLog(ctx, "market.creator_authorized", map[string]any{"account": account})
	return nil
}

// RevokeCreator removes an account from the capability set.
func (s *MarketService) RevokeCreator(ctx context.Context, caller, account string) error {
	if err := s.ledger.RevokeCreator(caller, account); err != nil {
		return fmt.Errorf("market_service: revoke creator: %w", err)
	}
	s.auditLog(ctx, "market.creator_revoked", map[string]any{"account": account})
	return nil
}

// ListArchives enumerates the monthly settlement bundles exported to cold
// storage.
func (s *MarketService) ListArchives(ctx context.Context) ([]domain.BlobInfo, error) {
	if s.archives == nil {
		return nil, fmt.Errorf("market_service: list archives: %w", domain.ErrNotFound)
	}
	infos, err := s.archives.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("market_service: list archives: %w", err)
	}
	return infos, nil
}

// OpenArchive streams one exported bundle by its storage path. Paths outside
// the archive prefix do not resolve.
func (s *MarketService) OpenArchive(ctx context.Context, path string) (io.ReadCloser, error) {
	if s.archives == nil || !strings.HasPrefix(path, archivePrefix) {
		return nil, fmt.Errorf("market_service: archive %q: %w", path, domain.ErrNotFound)
	}
	rc, err := s.archives.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("market_service: archive %q: %w", path, err)
	}
	return rc, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// write-behind helpers shared by the services
// ---------------------------------------------------------------------------

func (s *MarketService) persistMarket(ctx context.Context, m domain.Market) {
	if err := s.markets.Upsert(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: persist failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publish(ctx context.Context, channel string, payload any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
