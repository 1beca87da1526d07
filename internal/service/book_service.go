package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketcore/internal/book"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

// placeRateWindow is the sliding window used to rate-limit order placement.
const placeRateWindow = time.Minute

// BookService fronts the order book engine: placement, cancellation, claims
// and book reads, with rate limiting, snapshot caching and persistence.
type BookService struct {
	book      *book.Book
	orders    domain.OrderStore
	fills     domain.FillStore
	bookCache domain.BookCache
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	audit     domain.AuditStore
	rateLimit int
	logger    *slog.Logger
}

// NewBookService creates a BookService with all required dependencies.
// ratePerMinute caps how many orders a single account may place per minute.
func NewBookService(
	b *book.Book,
	orders domain.OrderStore,
	fills domain.FillStore,
	bookCache domain.BookCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	ratePerMinute int,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		book:      b,
		orders:    orders,
		fills:     fills,
		bookCache: bookCache,
		limiter:   limiter,
		bus:       bus,
		audit:     audit,
		rateLimit: ratePerMinute,
		logger:    logger,
	}
}

// PlaceOrder escrows, matches and rests a limit order. Placement is
// rate-limited per owner.
func (s *BookService) PlaceOrder(ctx context.Context, owner, marketID string, buyYes bool, price, size int64) (domain.Order, []domain.Fill, error) {
	allowed, err := s.limiter.Allow(ctx, "place:"+owner, s.rateLimit, placeRateWindow)
	if err != nil {
		// Rate limiting is advisory: losing redis must not halt trading.
		s.logger.WarnContext(ctx, "book_service: rate limiter unavailable",
			slog.String("error", err.Error()),
		)
	} else if !allowed {
		return domain.Order{}, nil, fmt.Errorf("book_service: place order by %s: %w", owner, domain.ErrRateLimited)
	}

	o, fills, err := s.book.PlaceOrder(owner, marketID, buyYes, price, size)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("book_service: place order: %w", err)
	}

	s.persistOrder(ctx, o)
	for _, f := range fills {
		// The resting counterparty's filled amount changed too.
		counter := f.YesOrderID
		if buyYes {
			counter = f.NoOrderID
		}
		if co, err := s.book.GetOrder(counter); err == nil {
			s.persistOrder(ctx, co)
		}
	}
	if err := s.fills.InsertBatch(ctx, fills); err != nil {
		s.logger.WarnContext(ctx, "book_service: persist fills failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	s.refreshSnapshot(ctx, marketID)
	s.auditLog(ctx, "book.order_placed", map[string]any{
		"order_id":  o.ID,
		"market_id": marketID,
		"owner":     owner,
		"matched":   o.Filled,
	})
	s.publish(ctx, map[string]string{
		"type":      "order_placed",
		"market_id": marketID,
		"order_id":  o.ID,
	})
	return o, fills, nil
}

// CancelOrder refunds the unmatched remainder of the owner's order.
func (s *BookService) CancelOrder(ctx context.Context, owner, orderID string) (refunded int64, err error) {
	refunded, err = s.book.CancelOrder(owner, orderID)
	if err != nil {
		return 0, fmt.Errorf("book_service: cancel order: %w", err)
	}

	marketID := ""
	if o, getErr := s.book.GetOrder(orderID); getErr == nil {
		marketID = o.MarketID
		s.persistOrder(ctx, o)
		s.refreshSnapshot(ctx, marketID)
	}
	s.auditLog(ctx, "book.order_cancelled", map[string]any{
		"order_id": orderID,
		"owner":    owner,
		"refunded": refunded,
	})
	s.publish(ctx, map[string]string{
		"type":      "order_cancelled",
		"market_id": marketID,
		"order_id":  orderID,
	})
	return refunded, nil
}

// Claim pays the caller for their matched winning-side fills after
// settlement.
func (s *BookService) Claim(ctx context.Context, owner, marketID string) (paid int64, err error) {
	paid, err = s.book.ClaimPosition(owner, marketID)
	if err != nil {
		return 0, fmt.Errorf("book_service: claim: %w", err)
	}
	if paid == 0 {
		return 0, nil
	}

	for _, o := range s.book.ListByOwner(marketID, owner) {
		if o.Claimed {
			s.persistOrder(ctx, o)
		}
	}
	s.auditLog(ctx, "book.claimed", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"paid":      paid,
	})
	return paid, nil
}

// OrderBook returns one side of a market's book, serving the cached snapshot
// when available and rebuilding it from the engine on a miss.
func (s *BookService) OrderBook(ctx context.Context, marketID string, buyYes bool) ([]domain.BookLevel, error) {
	if snap, err := s.bookCache.GetSnapshot(ctx, marketID); err == nil {
		if buyYes {
			return snap.YesLevels, nil
		}
		return snap.NoLevels, nil
	}

	levels, err := s.book.OrderBook(marketID, buyYes)
	if err != nil {
		return nil, fmt.Errorf("book_service: order book: %w", err)
	}
	s.refreshSnapshot(ctx, marketID)
	return levels, nil
}

// BestBids returns the best resting price per side; a zero value with ok
// false means the side is empty.
func (s *BookService) BestBids(ctx context.Context, marketID string) (bestYes, bestNo int64, err error) {
	if y, n, err := s.bookCache.GetBest(ctx, marketID); err == nil {
		return y, n, nil
	}

	yes, okYes, err := s.book.BestYesBid(marketID)
	if err != nil {
		return 0, 0, fmt.Errorf("book_service: best bids: %w", err)
	}
	no, okNo, _ := s.book.BestNoBid(marketID)
	if okYes || okNo {
		s.refreshSnapshot(ctx, marketID)
	}
	return yes, no, nil
}

// GetOrder returns a single order.
func (s *BookService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := s.book.GetOrder(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("book_service: get order: %w", err)
	}
	return o, nil
}

func (s *BookService) persistOrder(ctx context.Context, o domain.Order) {
	if err := s.orders.Upsert(ctx, o); err != nil {
		s.logger.WarnContext(ctx, "book_service: persist order failed",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BookService) refreshSnapshot(ctx context.Context, marketID string) {
	snap, err := s.book.Snapshot(marketID)
	if err != nil {
		return
	}
	if err := s.bookCache.SetSnapshot(ctx, marketID, snap); err != nil {
		s.logger.WarnContext(ctx, "book_service: snapshot refresh failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BookService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "book_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BookService) publish(ctx context.Context, payload map[string]string) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "orders", evt); err != nil {
		s.logger.WarnContext(ctx, "book_service: publish failed",
			slog.String("error", err.Error()),
		)
	}
}
