package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketcore/internal/amm"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

// PoolService fronts the AMM engine: liquidity management, trading and
// post-settlement redemption, with write-behind persistence and eventing.
type PoolService struct {
	pool      *amm.Pool
	ledger    *market.Ledger
	markets   domain.MarketStore
	positions domain.PositionStore
	cache     domain.MarketInfoCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPoolService creates a PoolService with all required dependencies.
func NewPoolService(
	pool *amm.Pool,
	ledger *market.Ledger,
	markets domain.MarketStore,
	positions domain.PositionStore,
	cache domain.MarketInfoCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PoolService {
	return &PoolService{
		pool:      pool,
		ledger:    ledger,
		markets:   markets,
		positions: positions,
		cache:     cache,
		bus:       bus,
		audit:     audit,
		logger:    logger,
	}
}

// AddLiquidity deposits collateral on each side with per-side minimum share
// bounds and returns the minted share counts.
func (s *PoolService) AddLiquidity(ctx context.Context, owner, marketID string, amountYes, amountNo, minSharesYes, minSharesNo int64) (mintedYes, mintedNo int64, err error) {
	mintedYes, mintedNo, err = s.pool.AddLiquidityAsymmetric(owner, marketID, amountYes, amountNo, minSharesYes, minSharesNo)
	if err != nil {
		return 0, 0, fmt.Errorf("pool_service: add liquidity: %w", err)
	}

	s.sync(ctx, marketID, owner)
	s.auditLog(ctx, "pool.liquidity_added", map[string]any{
		"market_id":  marketID,
		"owner":      owner,
		"minted_yes": mintedYes,
		"minted_no":  mintedNo,
	})
	s.publish(ctx, marketID, "liquidity_added")
	return mintedYes, mintedNo, nil
}

// RemoveLiquidity burns LP shares with per-side minimum payout bounds and
// returns the collateral paid out.
func (s *PoolService) RemoveLiquidity(ctx context.Context, owner, marketID string, burnYes, burnNo, minOutYes, minOutNo int64) (outYes, outNo int64, err error) {
	outYes, outNo, err = s.pool.RemoveLiquidityAsymmetric(owner, marketID, burnYes, burnNo, minOutYes, minOutNo)
	if err != nil {
		return 0, 0, fmt.Errorf("pool_service: remove liquidity: %w", err)
	}

	s.sync(ctx, marketID, owner)
	s.auditLog(ctx, "pool.liquidity_removed", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"out_yes":   outYes,
		"out_no":    outNo,
	})
	s.publish(ctx, marketID, "liquidity_removed")
	return outYes, outNo, nil
}

// Trade swaps collateral for outcome positions on one side.
func (s *PoolService) Trade(ctx context.Context, owner, marketID string, buyYes bool, amountIn, minOut int64) (out int64, err error) {
	out, err = s.pool.Trade(owner, marketID, buyYes, amountIn, minOut)
	if err != nil {
		return 0, fmt.Errorf("pool_service: trade: %w", err)
	}

	s.sync(ctx, marketID, owner)
	s.auditLog(ctx, "pool.trade", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"buy_yes":   buyYes,
		"amount_in": amountIn,
		"out":       out,
	})
	s.publish(ctx, marketID, "trade")
	return out, nil
}

// Quote prices a prospective trade without mutating anything.
func (s *PoolService) Quote(ctx context.Context, marketID string, buyYes bool, amountIn int64) (int64, error) {
	out, err := s.pool.Quote(marketID, buyYes, amountIn)
	if err != nil {
		return 0, fmt.Errorf("pool_service: quote: %w", err)
	}
	return out, nil
}

// Redeem pays out the caller's winning-side position after settlement.
func (s *PoolService) Redeem(ctx context.Context, owner, marketID string) (paid int64, err error) {
	paid, err = s.pool.Redeem(owner, marketID)
	if err != nil {
		return 0, fmt.Errorf("pool_service: redeem: %w", err)
	}
	if paid == 0 {
		return 0, nil
	}

	s.sync(ctx, marketID, owner)
	s.auditLog(ctx, "pool.redeemed", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"paid":      paid,
	})
	s.publish(ctx, marketID, "redeemed")
	return paid, nil
}

// Positions returns an owner's LP shares and outcome positions in a market.
func (s *PoolService) Positions(ctx context.Context, marketID, owner string) (domain.LiquidityPosition, domain.TraderPosition, error) {
	if _, err := s.ledger.Get(marketID); err != nil {
		return domain.LiquidityPosition{}, domain.TraderPosition{}, fmt.Errorf("pool_service: positions: %w", err)
	}
	return s.pool.LiquidityPosition(marketID, owner), s.pool.TraderPosition(marketID, owner), nil
}

// sync pushes the post-operation ledger and position snapshots into the
// persistent store and drops the stale cached read model.
func (s *PoolService) sync(ctx context.Context, marketID, owner string) {
	if m, err := s.ledger.Get(marketID); err == nil {
		if err := s.markets.Upsert(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "pool_service: persist market failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.positions.UpsertLiquidity(ctx, s.pool.LiquidityPosition(marketID, owner)); err != nil {
		s.logger.WarnContext(ctx, "pool_service: persist liquidity failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.positions.UpsertTrader(ctx, s.pool.TraderPosition(marketID, owner)); err != nil {
		s.logger.WarnContext(ctx, "pool_service: persist position failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "pool_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PoolService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "pool_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PoolService) publish(ctx context.Context, marketID, eventType string) {
	evt, _ := json.Marshal(map[string]string{
		"type":      eventType,
		"market_id": marketID,
	})
	if err := s.bus.Publish(ctx, "pool", evt); err != nil {
		s.logger.WarnContext(ctx, "pool_service: publish failed",
			slog.String("error", err.Error()),
		)
	}
}
