// Package book implements the per-market limit order book: complementary
// price matching between YES and NO buyers, order escrow, cancellation, and
// post-settlement claims.
//
// Two orders are complementary when their prices sum to at most 100: a YES
// buy at p and a NO buy at q with p+q <= 100 both get their side at or better
// than their limit. A match consumes equal collateral from both orders.
package book

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

// EscrowAccount holds the unmatched remainder of every resting order.
const EscrowAccount = "marketcore:book:escrow"

// Book is the order book engine for all markets.
type Book struct {
	mu      sync.Mutex
	ledger  *market.Ledger
	token   domain.CollateralToken
	orders  map[string]*domain.Order
	resting map[string]*sides
	fills   map[string][]domain.Fill
	logger  *slog.Logger
}

// sides holds a market's resting orders, ascending by price, FIFO within a
// price level. Ascending order puts the cheapest complementary match first.
type sides struct {
	yes []*domain.Order
	no  []*domain.Order
}

// NewBook creates an order book bound to the given market ledger.
func NewBook(ledger *market.Ledger, logger *slog.Logger) *Book {
	return &Book{
		ledger:  ledger,
		token:   ledger.Token(),
		orders:  make(map[string]*domain.Order),
		resting: make(map[string]*sides),
		fills:   make(map[string][]domain.Fill),
		logger:  logger.With(slog.String("component", "book")),
	}
}

// PlaceOrder escrows size from the owner, matches against the opposite side
// while prices remain complementary, and rests any unmatched remainder. It
// returns the order as stored plus the fills the placement produced.
func (b *Book) PlaceOrder(owner, marketID string, buyYes bool, price, size int64) (domain.Order, []domain.Fill, error) {
	release := b.ledger.Guard(marketID)
	defer release()

	m, err := b.ledger.Get(marketID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if m.Settled {
		return domain.Order{}, nil, fmt.Errorf("book: place order %s: %w", marketID, domain.ErrAlreadySettled)
	}
	if price < 1 || price > 99 {
		return domain.Order{}, nil, fmt.Errorf("book: place order %s: price %d: %w", marketID, price, domain.ErrInvalidPrice)
	}
	if size <= 0 {
		return domain.Order{}, nil, fmt.Errorf("book: place order %s: %w", marketID, domain.ErrInvalidAmount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Plan the matches first so collateral moves before any book mutation.
	opp := b.oppositeLocked(marketID, buyYes)
	type planned struct {
		resting *domain.Order
		amount  int64
	}
	var plan []planned
	var matched int64
	remaining := size
	for _, r := range opp {
		if remaining == 0 || price+r.Price > 100 {
			break
		}
		amt := min64(remaining, r.Remaining())
		if amt == 0 {
			continue
		}
		plan = append(plan, planned{resting: r, amount: amt})
		matched += amt
		remaining -= amt
	}

	if err := b.token.TransferFrom(owner, EscrowAccount, size); err != nil {
		return domain.Order{}, nil, fmt.Errorf("book: place order %s: %w", marketID, err)
	}
	if matched > 0 {
		// Matched collateral from both sides leaves escrow and backs the
		// market: YES fills into reserveYes, NO fills into reserveNo.
		if err := b.token.Transfer(EscrowAccount, market.VaultAccount, 2*matched); err != nil {
			_ = b.token.Transfer(EscrowAccount, owner, size)
			return domain.Order{}, nil, fmt.Errorf("book: place order %s: %w", marketID, err)
		}
		if err := b.ledger.Credit(marketID, matched, matched); err != nil {
			return domain.Order{}, nil, err
		}
	}

	now := time.Now().UTC()
	o := &domain.Order{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		Owner:     owner,
		BuyYes:    buyYes,
		Price:     price,
		Size:      size,
		CreatedAt: now,
	}
	b.orders[o.ID] = o

	fills := make([]domain.Fill, 0, len(plan))
	for _, pl := range plan {
		o.Filled += pl.amount
		pl.resting.Filled += pl.amount
		f := domain.Fill{
			ID:        uuid.NewString(),
			MarketID:  marketID,
			Amount:    pl.amount,
			CreatedAt: now,
		}
		if buyYes {
			f.YesOrderID, f.YesPrice = o.ID, o.Price
			f.NoOrderID, f.NoPrice = pl.resting.ID, pl.resting.Price
		} else {
			f.YesOrderID, f.YesPrice = pl.resting.ID, pl.resting.Price
			f.NoOrderID, f.NoPrice = o.ID, o.Price
		}
		fills = append(fills, f)
	}
	b.fills[marketID] = append(b.fills[marketID], fills...)
	b.pruneLocked(marketID, !buyYes)

	if !o.Terminal() {
		b.restLocked(o)
	}

	b.logger.Debug("order placed",
		slog.String("market_id", marketID),
		slog.String("order_id", o.ID),
		slog.Bool("buy_yes", buyYes),
		slog.Int64("price", price),
		slog.Int64("size", size),
		slog.Int64("matched", matched),
	)
	return *o, fills, nil
}

// CancelOrder refunds the unmatched remainder to the order's owner and marks
// the order terminal. Cancellation stays available after settlement so resting
// escrow is always recoverable.
func (b *Book) CancelOrder(owner, orderID string) (refunded int64, err error) {
	b.mu.Lock()
	o, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("book: cancel %s: %w", orderID, domain.ErrNotFound)
	}
	marketID := o.MarketID
	b.mu.Unlock()

	release := b.ledger.Guard(marketID)
	defer release()

	b.mu.Lock()
	if o.Owner != owner {
		b.mu.Unlock()
		return 0, fmt.Errorf("book: cancel %s: %w", orderID, domain.ErrNotOwner)
	}
	if o.Terminal() {
		b.mu.Unlock()
		return 0, fmt.Errorf("book: cancel %s: %w", orderID, domain.ErrAlreadyTerminal)
	}
	refunded = o.Remaining()
	o.Cancelled = true
	b.removeLocked(o)
	b.mu.Unlock()

	if refunded > 0 {
		if err := b.token.Transfer(EscrowAccount, owner, refunded); err != nil {
			b.mu.Lock()
			o.Cancelled = false
			b.restLocked(o)
			b.mu.Unlock()
			return 0, fmt.Errorf("book: cancel %s: %w", orderID, err)
		}
	}
	return refunded, nil
}

// ClaimPosition pays the caller for every matched winning-side fill they hold
// in the market: a filled YES unit at price p pays 100/p when YES wins. When
// the matched prices summed below 100 the entitlement can exceed what the
// market holds; the payout is capped at the remaining reserves so matched
// collateral is always recoverable. Repeat calls after a successful claim are
// no-op successes; a caller with no winning fills at all gets
// ErrNothingToClaim.
func (b *Book) ClaimPosition(owner, marketID string) (paid int64, err error) {
	release := b.ledger.Guard(marketID)
	defer release()

	m, err := b.ledger.Get(marketID)
	if err != nil {
		return 0, err
	}
	if !m.Settled {
		return 0, fmt.Errorf("book: claim %s: %w", marketID, domain.ErrNotSettled)
	}

	b.mu.Lock()
	var claimable []*domain.Order
	var entitled int64
	alreadyClaimed := false
	for _, o := range b.orders {
		if o.MarketID != marketID || o.Owner != owner || o.BuyYes != m.OutcomeYes || o.Filled == 0 {
			continue
		}
		if o.Claimed {
			alreadyClaimed = true
			continue
		}
		claimable = append(claimable, o)
		entitled += o.Units()
	}
	if entitled == 0 {
		b.mu.Unlock()
		if alreadyClaimed {
			return 0, nil
		}
		return 0, fmt.Errorf("book: claim %s by %s: %w", marketID, owner, domain.ErrNothingToClaim)
	}
	// Mark claimed before collateral leaves the vault.
	for _, o := range claimable {
		o.Claimed = true
	}
	b.mu.Unlock()

	paid = min64(entitled, m.TVL())
	if paid == 0 {
		return 0, nil
	}
	fromYes := min64(m.ReserveYes, paid)
	fromNo := paid - fromYes
	if err := b.ledger.PayOut(marketID, fromYes, fromNo, owner); err != nil {
		b.mu.Lock()
		for _, o := range claimable {
			o.Claimed = false
		}
		b.mu.Unlock()
		return 0, err
	}

	b.logger.Info("position claimed",
		slog.String("market_id", marketID),
		slog.String("owner", owner),
		slog.Int64("paid", paid),
	)
	return paid, nil
}

// OrderBook aggregates resting size per price level for one side, price
// descending. An empty book returns an empty slice, never an error.
func (b *Book) OrderBook(marketID string, buyYes bool) ([]domain.BookLevel, error) {
	if _, err := b.ledger.Get(marketID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	byPrice := make(map[int64]int64)
	for _, o := range b.sideLocked(marketID, buyYes) {
		byPrice[o.Price] += o.Remaining()
	}
	levels := make([]domain.BookLevel, 0, len(byPrice))
	for p, s := range byPrice {
		levels = append(levels, domain.BookLevel{Price: p, Size: s})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels, nil
}

// BestYesBid returns the highest resting YES price; ok is false on an empty
// side instead of a fabricated price.
func (b *Book) BestYesBid(marketID string) (price int64, ok bool, err error) {
	return b.best(marketID, true)
}

// BestNoBid returns the highest resting NO price; ok is false on an empty
// side.
func (b *Book) BestNoBid(marketID string) (price int64, ok bool, err error) {
	return b.best(marketID, false)
}

func (b *Book) best(marketID string, buyYes bool) (int64, bool, error) {
	if _, err := b.ledger.Get(marketID); err != nil {
		return 0, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	side := b.sideLocked(marketID, buyYes)
	if len(side) == 0 {
		return 0, false, nil
	}
	return side[len(side)-1].Price, true, nil
}

// Snapshot builds the cacheable read model of both sides of a market's book.
func (b *Book) Snapshot(marketID string) (domain.BookSnapshot, error) {
	yes, err := b.OrderBook(marketID, true)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	no, err := b.OrderBook(marketID, false)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	snap := domain.BookSnapshot{
		MarketID:  marketID,
		YesLevels: yes,
		NoLevels:  no,
		Timestamp: time.Now().UTC(),
	}
	if p, ok, _ := b.BestYesBid(marketID); ok {
		snap.BestYes = p
	}
	if p, ok, _ := b.BestNoBid(marketID); ok {
		snap.BestNo = p
	}
	return snap, nil
}

// GetOrder returns a copy of an order.
func (b *Book) GetOrder(orderID string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("book: order %s: %w", orderID, domain.ErrNotFound)
	}
	return *o, nil
}

// ListByOwner returns copies of all of an owner's orders in a market.
func (b *Book) ListByOwner(marketID, owner string) []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Order
	for _, o := range b.orders {
		if o.MarketID == marketID && o.Owner == owner {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Fills returns copies of every fill recorded in a market.
func (b *Book) Fills(marketID string) []domain.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Fill, len(b.fills[marketID]))
	copy(out, b.fills[marketID])
	return out
}

func (b *Book) marketLocked(marketID string) *sides {
	s, ok := b.resting[marketID]
	if !ok {
		s = &sides{}
		b.resting[marketID] = s
	}
	return s
}

func (b *Book) sideLocked(marketID string, buyYes bool) []*domain.Order {
	s := b.marketLocked(marketID)
	if buyYes {
		return s.yes
	}
	return s.no
}

func (b *Book) oppositeLocked(marketID string, buyYes bool) []*domain.Order {
	return b.sideLocked(marketID, !buyYes)
}

// restLocked inserts an order into its side keeping ascending price order and
// FIFO within a level.
func (b *Book) restLocked(o *domain.Order) {
	s := b.marketLocked(o.MarketID)
	side := &s.no
	if o.BuyYes {
		side = &s.yes
	}
	i := sort.Search(len(*side), func(i int) bool { return (*side)[i].Price > o.Price })
	*side = append(*side, nil)
	copy((*side)[i+1:], (*side)[i:])
	(*side)[i] = o
}

func (b *Book) removeLocked(o *domain.Order) {
	s := b.marketLocked(o.MarketID)
	side := &s.no
	if o.BuyYes {
		side = &s.yes
	}
	for i, r := range *side {
		if r.ID == o.ID {
			*side = append((*side)[:i], (*side)[i+1:]...)
			return
		}
	}
}

// pruneLocked drops fully filled orders from one side of a market's book.
func (b *Book) pruneLocked(marketID string, buyYes bool) {
	s := b.marketLocked(marketID)
	side := &s.no
	if buyYes {
		side = &s.yes
	}
	kept := (*side)[:0]
	for _, o := range *side {
		if !o.Terminal() {
			kept = append(kept, o)
		}
	}
	*side = kept
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
