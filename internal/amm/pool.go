// Package amm implements the dual-reserve liquidity pool: per-side LP share
// classes over the YES and NO reserves, the trade curve that converts
// collateral into outcome positions, and post-settlement redemption.
//
// Pricing rule: a side's implied price is its reserve's share of TVL in
// cents. A trade deposits its full input into the purchased side's reserve
// (TVL grows by exactly the input) and mints position units at the
// post-deposit marginal price, so buying a side always raises its price and
// larger trades always pay more per unit.
package amm

import (
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"sync"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

// Pool is the AMM engine. LP shares and trader positions are disjoint
// accounting tracks over the same market reserves.
type Pool struct {
	mu        sync.Mutex
	ledger    *market.Ledger
	token     domain.CollateralToken
	liquidity map[string]map[string]*domain.LiquidityPosition
	positions map[string]map[string]*domain.TraderPosition
	logger    *slog.Logger
}

// NewPool creates a pool bound to the given market ledger.
func NewPool(ledger *market.Ledger, logger *slog.Logger) *Pool {
	return &Pool{
		ledger:    ledger,
		token:     ledger.Token(),
		liquidity: make(map[string]map[string]*domain.LiquidityPosition),
		positions: make(map[string]map[string]*domain.TraderPosition),
		logger:    logger.With(slog.String("component", "amm")),
	}
}

// AddLiquidity is the symmetric deposit: identical minting rule to the
// asymmetric form with no slippage bounds.
func (p *Pool) AddLiquidity(owner, marketID string, amountYes, amountNo int64) (mintedYes, mintedNo int64, err error) {
	return p.AddLiquidityAsymmetric(owner, marketID, amountYes, amountNo, 0, 0)
}

// AddLiquidityAsymmetric deposits collateral on each side and mints LP shares
// proportional to the existing reserve; the first-ever deposit on a side
// fixes that side's 1:1 exchange rate independently of the other side.
// Minted shares below a caller minimum reject with ErrSlippageExceeded,
// checked independently per side, before any state changes.
func (p *Pool) AddLiquidityAsymmetric(owner, marketID string, amountYes, amountNo, minSharesYes, minSharesNo int64) (mintedYes, mintedNo int64, err error) {
	release := p.ledger.Guard(marketID)
	defer release()

	m, err := p.ledger.Get(marketID)
	if err != nil {
		return 0, 0, err
	}
	if m.Settled {
		return 0, 0, fmt.Errorf("amm: add liquidity %s: %w", marketID, domain.ErrAlreadySettled)
	}
	if amountYes < 0 || amountNo < 0 || (amountYes == 0 && amountNo == 0) {
		return 0, 0, fmt.Errorf("amm: add liquidity %s: %w", marketID, domain.ErrInvalidAmount)
	}

	mintedYes = sharesForDeposit(amountYes, m.ReserveYes, m.TotalSharesYes)
	mintedNo = sharesForDeposit(amountNo, m.ReserveNo, m.TotalSharesNo)
	if mintedYes < minSharesYes {
		return 0, 0, fmt.Errorf("amm: add liquidity %s: yes shares %d below minimum %d: %w",
			marketID, mintedYes, minSharesYes, domain.ErrSlippageExceeded)
	}
	if mintedNo < minSharesNo {
		return 0, 0, fmt.Errorf("amm: add liquidity %s: no shares %d below minimum %d: %w",
			marketID, mintedNo, minSharesNo, domain.ErrSlippageExceeded)
	}

	if err := p.token.TransferFrom(owner, market.VaultAccount, amountYes+amountNo); err != nil {
		return 0, 0, fmt.Errorf("amm: add liquidity %s: %w", marketID, err)
	}
	if err := p.ledger.Credit(marketID, amountYes, amountNo); err != nil {
		return 0, 0, err
	}
	if err := p.ledger.MintShares(marketID, mintedYes, mintedNo); err != nil {
		return 0, 0, err
	}

	p.mu.Lock()
	lp := p.liquidityLocked(marketID, owner)
	lp.SharesYes += mintedYes
	lp.SharesNo += mintedNo
	p.mu.Unlock()

	p.logger.Debug("liquidity added",
		slog.String("market_id", marketID),
		slog.String("owner", owner),
		slog.Int64("minted_yes", mintedYes),
		slog.Int64("minted_no", mintedNo),
	)
	return mintedYes, mintedNo, nil
}

// RemoveLiquidity burns shares with no slippage bounds.
func (p *Pool) RemoveLiquidity(owner, marketID string, burnYes, burnNo int64) (outYes, outNo int64, err error) {
	return p.RemoveLiquidityAsymmetric(owner, marketID, burnYes, burnNo, 0, 0)
}

// RemoveLiquidityAsymmetric burns the caller's shares on each requested side
// and pays out burn*reserve/totalShares per side. A side may be omitted with
// burn = 0. Payouts below a caller minimum reject with ErrSlippageExceeded
// before any state changes.
func (p *Pool) RemoveLiquidityAsymmetric(owner, marketID string, burnYes, burnNo, minOutYes, minOutNo int64) (outYes, outNo int64, err error) {
	release := p.ledger.Guard(marketID)
	defer release()

	m, err := p.ledger.Get(marketID)
	if err != nil {
		return 0, 0, err
	}
	if m.Settled {
		return 0, 0, fmt.Errorf("amm: remove liquidity %s: %w", marketID, domain.ErrAlreadySettled)
	}
	if burnYes < 0 || burnNo < 0 || (burnYes == 0 && burnNo == 0) {
		return 0, 0, fmt.Errorf("amm: remove liquidity %s: %w", marketID, domain.ErrInvalidAmount)
	}

	p.mu.Lock()
	lp := p.liquidityLocked(marketID, owner)
	if lp.SharesYes < burnYes || lp.SharesNo < burnNo {
		p.mu.Unlock()
		return 0, 0, fmt.Errorf("amm: remove liquidity %s: %w", marketID, domain.ErrInsufficientShares)
	}
	p.mu.Unlock()

	if burnYes > 0 {
		outYes = burnYes * m.ReserveYes / m.TotalSharesYes
	}
	if burnNo > 0 {
		outNo = burnNo * m.ReserveNo / m.TotalSharesNo
	}
	if outYes < minOutYes {
		return 0, 0, fmt.Errorf("amm: remove liquidity %s: yes payout %d below minimum %d: %w",
			marketID, outYes, minOutYes, domain.ErrSlippageExceeded)
	}
	if outNo < minOutNo {
		return 0, 0, fmt.Errorf("amm: remove liquidity %s: no payout %d below minimum %d: %w",
			marketID, outNo, minOutNo, domain.ErrSlippageExceeded)
	}

	if err := p.ledger.BurnShares(marketID, burnYes, burnNo); err != nil {
		return 0, 0, err
	}
	p.mu.Lock()
	lp.SharesYes -= burnYes
	lp.SharesNo -= burnNo
	p.mu.Unlock()

	if err := p.ledger.PayOut(marketID, outYes, outNo, owner); err != nil {
		// Payout failed after the burn: restore the shares untouched.
		_ = p.ledger.MintShares(marketID, burnYes, burnNo)
		p.mu.Lock()
		lp.SharesYes += burnYes
		lp.SharesNo += burnNo
		p.mu.Unlock()
		return 0, 0, err
	}
	return outYes, outNo, nil
}

// Trade exchanges collateral for outcome positions on one side. The input is
// deposited into the purchased side's reserve and the output is priced at the
// post-deposit marginal price, rejecting with ErrSlippageExceeded when it
// falls below minOut.
func (p *Pool) Trade(owner, marketID string, buyYes bool, amountIn, minOut int64) (out int64, err error) {
	release := p.ledger.Guard(marketID)
	defer release()

	m, err := p.ledger.Get(marketID)
	if err != nil {
		return 0, err
	}
	if m.Settled {
		return 0, fmt.Errorf("amm: trade %s: %w", marketID, domain.ErrAlreadySettled)
	}
	if amountIn <= 0 || amountIn > math.MaxInt64-m.TVL() {
		return 0, fmt.Errorf("amm: trade %s: %w", marketID, domain.ErrInvalidAmount)
	}

	out = quoteOut(m, buyYes, amountIn)
	if out < minOut {
		return 0, fmt.Errorf("amm: trade %s: out %d below minimum %d: %w",
			marketID, out, minOut, domain.ErrSlippageExceeded)
	}

	if err := p.token.TransferFrom(owner, market.VaultAccount, amountIn); err != nil {
		return 0, fmt.Errorf("amm: trade %s: %w", marketID, err)
	}
	var dYes, dNo int64
	if buyYes {
		dYes = amountIn
	} else {
		dNo = amountIn
	}
	if err := p.ledger.Credit(marketID, dYes, dNo); err != nil {
		return 0, err
	}

	p.mu.Lock()
	tp := p.positionLocked(marketID, owner)
	if buyYes {
		tp.PositionYes += out
	} else {
		tp.PositionNo += out
	}
	p.mu.Unlock()

	p.logger.Debug("trade executed",
		slog.String("market_id", marketID),
		slog.String("owner", owner),
		slog.Bool("buy_yes", buyYes),
		slog.Int64("amount_in", amountIn),
		slog.Int64("out", out),
	)
	return out, nil
}

// Quote returns the position units a trade of amountIn would mint right now.
func (p *Pool) Quote(marketID string, buyYes bool, amountIn int64) (int64, error) {
	m, err := p.ledger.Get(marketID)
	if err != nil {
		return 0, err
	}
	if amountIn <= 0 || amountIn > math.MaxInt64-m.TVL() {
		return 0, fmt.Errorf("amm: quote %s: %w", marketID, domain.ErrInvalidAmount)
	}
	return quoteOut(m, buyYes, amountIn), nil
}

// Redeem pays the caller their winning-side position 1:1 in collateral from
// the frozen reserves and zeroes the position. Calling with nothing left to
// redeem is a no-op success.
func (p *Pool) Redeem(owner, marketID string) (paid int64, err error) {
	release := p.ledger.Guard(marketID)
	defer release()

	m, err := p.ledger.Get(marketID)
	if err != nil {
		return 0, err
	}
	if !m.Settled {
		return 0, fmt.Errorf("amm: redeem %s: %w", marketID, domain.ErrNotSettled)
	}

	p.mu.Lock()
	tp := p.positionLocked(marketID, owner)
	if m.OutcomeYes {
		paid = tp.PositionYes
	} else {
		paid = tp.PositionNo
	}
	if paid == 0 {
		p.mu.Unlock()
		return 0, nil
	}
	// Zero the position before any collateral leaves the vault.
	tp.PositionYes = 0
	tp.PositionNo = 0
	p.mu.Unlock()

	fromYes := min64(m.ReserveYes, paid)
	fromNo := paid - fromYes
	if err := p.ledger.PayOut(marketID, fromYes, fromNo, owner); err != nil {
		p.mu.Lock()
		if m.OutcomeYes {
			tp.PositionYes = paid
		} else {
			tp.PositionNo = paid
		}
		p.mu.Unlock()
		return 0, err
	}
	return paid, nil
}

// CreditPosition grants outcome positions directly, bypassing the curve. The
// auction funnel uses it to hand cleared bidders their fills.
func (p *Pool) CreditPosition(marketID, owner string, dYes, dNo int64) error {
	if dYes < 0 || dNo < 0 {
		return fmt.Errorf("amm: credit position %s: %w", marketID, domain.ErrInvalidAmount)
	}
	if _, err := p.ledger.Get(marketID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	tp := p.positionLocked(marketID, owner)
	tp.PositionYes += dYes
	tp.PositionNo += dNo
	return nil
}

// TransferShares moves LP shares between owners without touching the share
// supply. The launch funnel uses it to deliver vested entitlements.
func (p *Pool) TransferShares(marketID, from, to string, dYes, dNo int64) error {
	if dYes < 0 || dNo < 0 {
		return fmt.Errorf("amm: transfer shares %s: %w", marketID, domain.ErrInvalidAmount)
	}
	if _, err := p.ledger.Get(marketID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.liquidityLocked(marketID, from)
	if src.SharesYes < dYes || src.SharesNo < dNo {
		return fmt.Errorf("amm: transfer shares %s: %w", marketID, domain.ErrInsufficientShares)
	}
	dst := p.liquidityLocked(marketID, to)
	src.SharesYes -= dYes
	src.SharesNo -= dNo
	dst.SharesYes += dYes
	dst.SharesNo += dNo
	return nil
}

// LiquidityPosition returns a copy of an owner's LP holding in a market.
func (p *Pool) LiquidityPosition(marketID, owner string) domain.LiquidityPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.liquidityLocked(marketID, owner)
}

// TraderPosition returns a copy of an owner's outcome position in a market.
func (p *Pool) TraderPosition(marketID, owner string) domain.TraderPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.positionLocked(marketID, owner)
}

// sharesForDeposit applies the minting rule for one side: proportional to the
// existing reserve, or 1:1 on the side's first-ever deposit.
func sharesForDeposit(amount, reserve, totalShares int64) int64 {
	if amount == 0 {
		return 0
	}
	if totalShares == 0 || reserve == 0 {
		return amount
	}
	return amount * totalShares / reserve
}

// quoteOut prices a trade at the post-deposit marginal price:
// out = in * TVL' / reserveSide' with the input already added to the side.
// The intermediate product exceeds int64 for large pools, so the division
// runs on a 128-bit numerator. The quotient fits: in <= reserveSide', so
// out <= TVL'.
func quoteOut(m domain.Market, buyYes bool, amountIn int64) int64 {
	reserveSide := m.ReserveNo + amountIn
	if buyYes {
		reserveSide = m.ReserveYes + amountIn
	}
	hi, lo := bits.Mul64(uint64(amountIn), uint64(m.TVL()+amountIn))
	out, _ := bits.Div64(hi, lo, uint64(reserveSide))
	return int64(out)
}

func (p *Pool) liquidityLocked(marketID, owner string) *domain.LiquidityPosition {
	byOwner, ok := p.liquidity[marketID]
	if !ok {
		byOwner = make(map[string]*domain.LiquidityPosition)
		p.liquidity[marketID] = byOwner
	}
	lp, ok := byOwner[owner]
	if !ok {
		lp = &domain.LiquidityPosition{MarketID: marketID, Owner: owner}
		byOwner[owner] = lp
	}
	return lp
}

func (p *Pool) positionLocked(marketID, owner string) *domain.TraderPosition {
	byOwner, ok := p.positions[marketID]
	if !ok {
		byOwner = make(map[string]*domain.TraderPosition)
		p.positions[marketID] = byOwner
	}
	tp, ok := byOwner[owner]
	if !ok {
		tp = &domain.TraderPosition{MarketID: marketID, Owner: owner}
		byOwner[owner] = tp
	}
	return tp
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
