// Package auction implements the sealed commit-reveal seeding auction: bidders
// commit a keccak256 digest of their bid alongside escrow, reveal within a
// fixed window, and finalization clears every at-or-better bid at a single
// collateral-weighted median price, seeding the market with the matched total.
package auction

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/amm"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

// EscrowAccount holds every committed bid until finalization.
const EscrowAccount = "marketcore:auction:escrow"

// CommitHash computes the sealed-bid digest a bidder commits to:
// keccak256(price || side || amount || salt) with integers big-endian.
func CommitHash(price int64, buyYes bool, salt []byte, amount int64) [32]byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint64(price))
	side := byte(0)
	if buyYes {
		side = 1
	}
	buf.WriteByte(side)
	_ = binary.Write(&buf, binary.BigEndian, uint64(amount))
	buf.Write(salt)
	var h [32]byte
	copy(h[:], crypto.Keccak256(buf.Bytes()))
	return h
}

// auction is one auction's full state.
type auction struct {
	id        string
	marketID  string
	state     domain.AuctionState
	commitEnd time.Time
	revealEnd time.Time
	bids      map[string]*domain.AuctionCommitment
	order     []string // bidders in commit arrival order
	result    *domain.AuctionResult
}

// Engine runs every live auction against the shared market ledger and pool.
type Engine struct {
	mu       sync.Mutex
	ledger   *market.Ledger
	pool     *amm.Pool
	token    domain.CollateralToken
	auctions map[string]*auction
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an auction engine bound to the ledger and pool.
func NewEngine(ledger *market.Ledger, pool *amm.Pool, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:   ledger,
		pool:     pool,
		token:    ledger.Token(),
		auctions: make(map[string]*auction),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "auction")),
	}
}

// Open creates an unseeded market and an auction over it. The creator must
// hold the market-creation capability; the auction funds the market only at
// finalization.
func (e *Engine) Open(creator, question, oracle string, commitWindow, revealWindow time.Duration, expiry time.Time) (auctionID, marketID string, err error) {
	if commitWindow <= 0 || revealWindow <= 0 {
		return "", "", fmt.Errorf("auction: open: %w", domain.ErrInvalidAmount)
	}
	m, err := e.ledger.CreateMarket(creator, question, oracle, 0, 0, expiry)
	if err != nil {
		return "", "", err
	}
	now := e.now().UTC()
	a := &auction{
		id:        uuid.NewString(),
		marketID:  m.ID,
		state:     domain.AuctionStateCommit,
		commitEnd: now.Add(commitWindow),
		revealEnd: now.Add(commitWindow + revealWindow),
		bids:      make(map[string]*domain.AuctionCommitment),
	}
	e.mu.Lock()
	e.auctions[a.id] = a
	e.mu.Unlock()

	e.logger.Info("auction opened",
		slog.String("auction_id", a.id),
		slog.String("market_id", m.ID),
		slog.Time("commit_end", a.commitEnd),
		slog.Time("reveal_end", a.revealEnd),
	)
	return a.id, m.ID, nil
}

// Commit escrows a bidder's deposit against a sealed digest. One commitment
// per bidder per auction; commits after the commit window reject.
func (e *Engine) Commit(bidder, auctionID string, hash [32]byte, deposit int64) error {
	if deposit <= 0 {
		return fmt.Errorf("auction: commit %s: %w", auctionID, domain.ErrInvalidAmount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.getLocked(auctionID)
	if err != nil {
		return err
	}
	if a.state != domain.AuctionStateCommit || !e.now().Before(a.commitEnd) {
		return fmt.Errorf("auction: commit %s: %w", auctionID, domain.ErrWindowClosed)
	}
	if _, dup := a.bids[bidder]; dup {
		return fmt.Errorf("auction: commit %s by %s: %w", auctionID, bidder, domain.ErrAlreadyCommitted)
	}
	if err := e.token.TransferFrom(bidder, EscrowAccount, deposit); err != nil {
		return fmt.Errorf("auction: commit %s: %w", auctionID, err)
	}
	a.bids[bidder] = &domain.AuctionCommitment{
		Bidder:      bidder,
		Hash:        hash,
		Escrow:      deposit,
		CommittedAt: e.now().UTC(),
	}
	a.order = append(a.order, bidder)
	return nil
}

// Reveal opens a sealed bid. The reveal must land inside the reveal window,
// match the committed digest exactly, and bid the full escrowed amount.
func (e *Engine) Reveal(bidder, auctionID string, price int64, buyYes bool, salt []byte, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.getLocked(auctionID)
	if err != nil {
		return err
	}
	now := e.now()
	if now.Before(a.commitEnd) {
		return fmt.Errorf("auction: reveal %s: %w", auctionID, domain.ErrWindowOpen)
	}
	if !now.Before(a.revealEnd) || a.state == domain.AuctionStateFinalized || a.state == domain.AuctionStateExpired {
		return fmt.Errorf("auction: reveal %s: %w", auctionID, domain.ErrWindowClosed)
	}
	a.state = domain.AuctionStateReveal

	c, ok := a.bids[bidder]
	if !ok {
		return fmt.Errorf("auction: reveal %s by %s: %w", auctionID, bidder, domain.ErrNotFound)
	}
	if c.Revealed {
		return fmt.Errorf("auction: reveal %s by %s: %w", auctionID, bidder, domain.ErrBadState)
	}
	if price < 1 || price > 99 {
		return fmt.Errorf("auction: reveal %s: price %d: %w", auctionID, price, domain.ErrInvalidPrice)
	}
	if amount != c.Escrow {
		return fmt.Errorf("auction: reveal %s: amount %d != escrow %d: %w", auctionID, amount, c.Escrow, domain.ErrBadReveal)
	}
	if CommitHash(price, buyYes, salt, amount) != c.Hash {
		return fmt.Errorf("auction: reveal %s by %s: digest mismatch: %w", auctionID, bidder, domain.ErrBadReveal)
	}
	c.Revealed = true
	c.Price = price
	c.BuyYes = buyYes
	c.Amount = amount
	return nil
}

// Finalize clears the auction once the reveal window has closed: it computes
// the collateral-weighted median clearing price over revealed bids, fills
// every at-or-better bid up to the thinner side's total with pro-rata
// reduction on the heavier side, refunds everything else (unrevealed escrow
// included), seeds the market with the matched collateral, and credits each
// filled bidder's outcome position at the clearing price.
func (e *Engine) Finalize(auctionID string) (domain.AuctionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.getLocked(auctionID)
	if err != nil {
		return domain.AuctionResult{}, err
	}
	if a.state == domain.AuctionStateFinalized || a.state == domain.AuctionStateExpired {
		return domain.AuctionResult{}, fmt.Errorf("auction: finalize %s: %w", auctionID, domain.ErrAlreadyTerminal)
	}
	if e.now().Before(a.revealEnd) {
		return domain.AuctionResult{}, fmt.Errorf("auction: finalize %s: %w", auctionID, domain.ErrWindowOpen)
	}

	revealed := make([]*domain.AuctionCommitment, 0, len(a.bids))
	for _, bidder := range a.order {
		if c := a.bids[bidder]; c.Revealed {
			revealed = append(revealed, c)
		}
	}
	if len(revealed) == 0 {
		if err := e.refundAllLocked(a); err != nil {
			return domain.AuctionResult{}, err
		}
		a.state = domain.AuctionStateExpired
		e.logger.Info("auction expired", slog.String("auction_id", a.id))
		return domain.AuctionResult{MarketID: a.marketID}, nil
	}

	clearing := clearingPrice(revealed)

	// Eligible bids get their side at or better than the clearing price.
	var yes, no []*domain.AuctionCommitment
	var totalYes, totalNo int64
	for _, c := range revealed {
		if c.BuyYes && c.Price >= clearing {
			yes = append(yes, c)
			totalYes += c.Amount
		}
		if !c.BuyYes && 100-c.Price >= clearing {
			no = append(no, c)
			totalNo += c.Amount
		}
	}
	matched := min64(totalYes, totalNo)

	fillsYes := allocate(yes, totalYes, matched)
	fillsNo := allocate(no, totalNo, matched)

	result := domain.AuctionResult{
		MarketID:      a.marketID,
		ClearingPrice: clearing,
		SeededYes:     matched,
		SeededNo:      matched,
	}
	filled := make(map[string]int64, len(fillsYes)+len(fillsNo))
	for _, f := range fillsYes {
		filled[f.bidder.Bidder] = f.amount
	}
	for _, f := range fillsNo {
		filled[f.bidder.Bidder] = f.amount
	}
	for _, bidder := range a.order {
		c := a.bids[bidder]
		fill := filled[bidder]
		refund := c.Escrow - fill
		units := int64(0)
		if fill > 0 {
			if c.BuyYes {
				units = fill * 100 / clearing
			} else {
				units = fill * 100 / (100 - clearing)
			}
		}
		result.Fills = append(result.Fills, domain.AuctionFill{
			Bidder: bidder,
			BuyYes: c.BuyYes,
			Filled: fill,
			Refund: refund,
			Units:  units,
		})
	}

	// Refunds first, then the seed deposit, then position credits. Escrow
	// holds exactly the refunds plus the matched totals so neither internal
	// transfer can come up short.
	for _, f := range result.Fills {
		if f.Refund > 0 {
			if err := e.token.Transfer(EscrowAccount, f.Bidder, f.Refund); err != nil {
				return domain.AuctionResult{}, fmt.Errorf("auction: finalize %s: refund: %w", auctionID, err)
			}
		}
	}
	if matched > 0 {
		if err := e.token.Transfer(EscrowAccount, market.VaultAccount, 2*matched); err != nil {
			return domain.AuctionResult{}, fmt.Errorf("auction: finalize %s: seed: %w", auctionID, err)
		}
		if err := e.ledger.Credit(a.marketID, matched, matched); err != nil {
			return domain.AuctionResult{}, err
		}
		for _, f := range result.Fills {
			if f.Units == 0 {
				continue
			}
			dYes, dNo := int64(0), int64(0)
			if f.BuyYes {
				dYes = f.Units
			} else {
				dNo = f.Units
			}
			if err := e.pool.CreditPosition(a.marketID, f.Bidder, dYes, dNo); err != nil {
				return domain.AuctionResult{}, err
			}
		}
	}

	a.state = domain.AuctionStateFinalized
	a.result = &result
	e.logger.Info("auction finalized",
		slog.String("auction_id", a.id),
		slog.String("market_id", a.marketID),
		slog.Int64("clearing_price", clearing),
		slog.Int64("matched", matched),
	)
	return result, nil
}

// Info returns the auction's state, market and windows.
func (e *Engine) Info(auctionID string) (state domain.AuctionState, marketID string, commitEnd, revealEnd time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.getLocked(auctionID)
	if err != nil {
		return "", "", time.Time{}, time.Time{}, err
	}
	return a.state, a.marketID, a.commitEnd, a.revealEnd, nil
}

// Result returns the finalization result, failing before finalization.
func (e *Engine) Result(auctionID string) (domain.AuctionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.getLocked(auctionID)
	if err != nil {
		return domain.AuctionResult{}, err
	}
	if a.result == nil {
		return domain.AuctionResult{}, fmt.Errorf("auction: result %s: %w", auctionID, domain.ErrBadState)
	}
	return *a.result, nil
}

func (e *Engine) getLocked(auctionID string) (*auction, error) {
	a, ok := e.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction: %s: %w", auctionID, domain.ErrNotFound)
	}
	return a, nil
}

func (e *Engine) refundAllLocked(a *auction) error {
	for _, bidder := range a.order {
		c := a.bids[bidder]
		if c.Escrow == 0 {
			continue
		}
		if err := e.token.Transfer(EscrowAccount, bidder, c.Escrow); err != nil {
			return fmt.Errorf("auction: refund %s: %w", bidder, err)
		}
	}
	return nil
}

// clearingPrice is the collateral-weighted median of the revealed bids'
// YES-normalized prices: the lowest price at which cumulative weight reaches
// half the total. NO bids at q count as YES bids at 100-q.
func clearingPrice(revealed []*domain.AuctionCommitment) int64 {
	type weighted struct {
		price  int64
		weight int64
	}
	points := make([]weighted, 0, len(revealed))
	var total int64
	for _, c := range revealed {
		p := c.Price
		if !c.BuyYes {
			p = 100 - c.Price
		}
		points = append(points, weighted{price: p, weight: c.Amount})
		total += c.Amount
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].price < points[j].price })
	var cum int64
	for _, pt := range points {
		cum += pt.weight
		if 2*cum >= total {
			return pt.price
		}
	}
	return points[len(points)-1].price
}

type allocation struct {
	bidder *domain.AuctionCommitment
	amount int64
}

// allocate distributes matched collateral over one side's eligible bids.
// Under-subscribed sides fill in full; over-subscribed sides pro-rate by
// floor, handing the remainder out one unit at a time in commit order so the
// result is deterministic.
func allocate(side []*domain.AuctionCommitment, total, matched int64) []allocation {
	if total == 0 || matched == 0 {
		return nil
	}
	out := make([]allocation, len(side))
	var given int64
	for i, c := range side {
		amt := c.Amount * matched / total
		out[i] = allocation{bidder: c, amount: amt}
		given += amt
	}
	for i := 0; given < matched; i = (i + 1) % len(out) {
		if out[i].amount < out[i].bidder.Amount {
			out[i].amount++
			given++
		}
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
