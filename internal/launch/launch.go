// Package launch implements the virtual-curve public launch: participants
// commit collateral per side off the real reserves, graduation moves the full
// accumulated total into the market as a single asymmetric liquidity deposit,
// and each participant's LP share entitlement vests linearly afterwards.
package launch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/amm"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

// EscrowAccount accumulates commitments pre-graduation and holds the pooled
// LP shares that vest out to participants afterwards.
const EscrowAccount = "marketcore:launch:escrow"

type launch struct {
	id       string
	marketID string
	state    domain.LaunchState

	tvlThreshold    int64
	minParticipants int
	deadline        time.Time
	vestingWindow   time.Duration
	graduatedAt     time.Time

	totalYes    int64
	totalNo     int64
	commitments map[string]*domain.LaunchCommitment
}

// Engine runs every live launch against the shared market ledger and pool.
type Engine struct {
	mu       sync.Mutex
	ledger   *market.Ledger
	pool     *amm.Pool
	token    domain.CollateralToken
	operator string
	launches map[string]*launch
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates a launch engine. The operator account is the spender the
// escrow account approves so graduation can deposit through the pool.
func NewEngine(ledger *market.Ledger, pool *amm.Pool, operator string, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:   ledger,
		pool:     pool,
		token:    ledger.Token(),
		operator: operator,
		launches: make(map[string]*launch),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "launch")),
	}
}

// Open creates an unseeded market and a launch over it. Graduation requires
// both thresholds; a launch that misses them by the deadline can be expired
// and refunded.
func (e *Engine) Open(creator, question, oracle string, tvlThreshold int64, minParticipants int, deadline time.Time, vestingWindow time.Duration, expiry time.Time) (launchID, marketID string, err error) {
	if tvlThreshold <= 0 || minParticipants <= 0 || vestingWindow <= 0 {
		return "", "", fmt.Errorf("launch: open: %w", domain.ErrInvalidAmount)
	}
	m, err := e.ledger.CreateMarket(creator, question, oracle, 0, 0, expiry)
	if err != nil {
		return "", "", err
	}
	l := &launch{
		id:              uuid.NewString(),
		marketID:        m.ID,
		state:           domain.LaunchStateActive,
		tvlThreshold:    tvlThreshold,
		minParticipants: minParticipants,
		deadline:        deadline,
		vestingWindow:   vestingWindow,
		commitments:     make(map[string]*domain.LaunchCommitment),
	}
	e.mu.Lock()
	e.launches[l.id] = l
	e.mu.Unlock()

	e.logger.Info("launch opened",
		slog.String("launch_id", l.id),
		slog.String("market_id", m.ID),
		slog.Int64("tvl_threshold", tvlThreshold),
		slog.Int("min_participants", minParticipants),
	)
	return l.id, m.ID, nil
}

// Commit escrows a participant's contribution per side. Repeat commits
// accumulate onto the same entitlement.
func (e *Engine) Commit(participant, launchID string, amountYes, amountNo int64) error {
	if amountYes < 0 || amountNo < 0 || (amountYes == 0 && amountNo == 0) {
		return fmt.Errorf("launch: commit %s: %w", launchID, domain.ErrInvalidAmount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.getLocked(launchID)
	if err != nil {
		return err
	}
	if l.state != domain.LaunchStateActive {
		return fmt.Errorf("launch: commit %s: %w", launchID, domain.ErrBadState)
	}
	if !e.now().Before(l.deadline) {
		return fmt.Errorf("launch: commit %s: %w", launchID, domain.ErrWindowClosed)
	}
	if err := e.token.TransferFrom(participant, EscrowAccount, amountYes+amountNo); err != nil {
		return fmt.Errorf("launch: commit %s: %w", launchID, err)
	}
	c, ok := l.commitments[participant]
	if !ok {
		c = &domain.LaunchCommitment{Participant: participant}
		l.commitments[participant] = c
	}
	c.AmountYes += amountYes
	c.AmountNo += amountNo
	l.totalYes += amountYes
	l.totalNo += amountNo
	return nil
}

// Graduate moves the full accumulated total into the market as one asymmetric
// liquidity deposit and fixes every participant's pro-rata share entitlement.
// It rejects while either threshold is unmet.
func (e *Engine) Graduate(launchID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.getLocked(launchID)
	if err != nil {
		return err
	}
	if l.state != domain.LaunchStateActive {
		return fmt.Errorf("launch: graduate %s: %w", launchID, domain.ErrBadState)
	}
	if l.totalYes+l.totalNo < l.tvlThreshold || len(l.commitments) < l.minParticipants {
		return fmt.Errorf("launch: graduate %s: thresholds unmet: %w", launchID, domain.ErrBadState)
	}

	e.token.Approve(EscrowAccount, e.operator, l.totalYes+l.totalNo)
	mintedYes, mintedNo, err := e.pool.AddLiquidityAsymmetric(EscrowAccount, l.marketID, l.totalYes, l.totalNo, 0, 0)
	if err != nil {
		return fmt.Errorf("launch: graduate %s: %w", launchID, err)
	}

	for _, c := range l.commitments {
		if l.totalYes > 0 {
			c.EntitledYes = c.AmountYes * mintedYes / l.totalYes
		}
		if l.totalNo > 0 {
			c.EntitledNo = c.AmountNo * mintedNo / l.totalNo
		}
	}
	l.state = domain.LaunchStateGraduated
	l.graduatedAt = e.now().UTC()

	e.logger.Info("launch graduated",
		slog.String("launch_id", l.id),
		slog.String("market_id", l.marketID),
		slog.Int64("total_yes", l.totalYes),
		slog.Int64("total_no", l.totalNo),
		slog.Int("participants", len(l.commitments)),
	)
	return nil
}

// Claim transfers the participant's newly vested LP shares:
// entitled*elapsed/window minus what was already claimed, per side. Claiming
// with nothing newly vested is a no-op success.
func (e *Engine) Claim(participant, launchID string) (claimedYes, claimedNo int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.getLocked(launchID)
	if err != nil {
		return 0, 0, err
	}
	if l.state != domain.LaunchStateGraduated {
		return 0, 0, fmt.Errorf("launch: claim %s: %w", launchID, domain.ErrNotSettled)
	}
	c, ok := l.commitments[participant]
	if !ok {
		return 0, 0, fmt.Errorf("launch: claim %s by %s: %w", launchID, participant, domain.ErrNotFound)
	}

	elapsed := e.now().UTC().Sub(l.graduatedAt)
	claimedYes = vested(c.EntitledYes, elapsed, l.vestingWindow) - c.ClaimedYes
	claimedNo = vested(c.EntitledNo, elapsed, l.vestingWindow) - c.ClaimedNo
	if claimedYes == 0 && claimedNo == 0 {
		return 0, 0, nil
	}
	if err := e.pool.TransferShares(l.marketID, EscrowAccount, participant, claimedYes, claimedNo); err != nil {
		return 0, 0, err
	}
	c.ClaimedYes += claimedYes
	c.ClaimedNo += claimedNo
	return claimedYes, claimedNo, nil
}

// Expire refunds every commitment of a launch that missed its thresholds by
// the deadline.
func (e *Engine) Expire(launchID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.getLocked(launchID)
	if err != nil {
		return err
	}
	if l.state != domain.LaunchStateActive {
		return fmt.Errorf("launch: expire %s: %w", launchID, domain.ErrBadState)
	}
	if e.now().Before(l.deadline) {
		return fmt.Errorf("launch: expire %s: %w", launchID, domain.ErrWindowOpen)
	}
	if l.totalYes+l.totalNo >= l.tvlThreshold && len(l.commitments) >= l.minParticipants {
		return fmt.Errorf("launch: expire %s: thresholds met: %w", launchID, domain.ErrBadState)
	}
	for _, c := range l.commitments {
		refund := c.AmountYes + c.AmountNo
		if refund == 0 {
			continue
		}
		if err := e.token.Transfer(EscrowAccount, c.Participant, refund); err != nil {
			return fmt.Errorf("launch: expire %s: refund %s: %w", launchID, c.Participant, err)
		}
		c.AmountYes = 0
		c.AmountNo = 0
	}
	l.totalYes = 0
	l.totalNo = 0
	l.state = domain.LaunchStateExpired
	e.logger.Info("launch expired", slog.String("launch_id", l.id))
	return nil
}

// Commitment returns a copy of a participant's commitment record.
func (e *Engine) Commitment(launchID, participant string) (domain.LaunchCommitment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.getLocked(launchID)
	if err != nil {
		return domain.LaunchCommitment{}, err
	}
	c, ok := l.commitments[participant]
	if !ok {
		return domain.LaunchCommitment{}, fmt.Errorf("launch: commitment %s: %w", participant, domain.ErrNotFound)
	}
	return *c, nil
}

// Info returns the launch read model.
func (e *Engine) Info(launchID string) (domain.LaunchInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.getLocked(launchID)
	if err != nil {
		return domain.LaunchInfo{}, err
	}
	info := domain.LaunchInfo{
		ID:            l.id,
		MarketID:      l.marketID,
		State:         l.state,
		TotalYes:      l.totalYes,
		TotalNo:       l.totalNo,
		Participants:  len(l.commitments),
		VestingWindow: l.vestingWindow.String(),
	}
	if !l.graduatedAt.IsZero() {
		t := l.graduatedAt
		info.GraduatedAt = &t
	}
	return info, nil
}

func (e *Engine) getLocked(launchID string) (*launch, error) {
	l, ok := e.launches[launchID]
	if !ok {
		return nil, fmt.Errorf("launch: %s: %w", launchID, domain.ErrNotFound)
	}
	return l, nil
}

// vested returns the linearly vested portion of an entitlement, capped at the
// full entitlement once the window has elapsed.
func vested(entitled int64, elapsed, window time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= window {
		return entitled
	}
	return entitled * int64(elapsed) / int64(window)
}
