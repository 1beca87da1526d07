package launch

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/amm"
	"github.com/alanyoungcy/marketcore/internal/collateral"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

const (
	testOwner    = "test:owner"
	testOperator = "test:operator"
	testOracle   = "test:oracle"

	commitWindow  = 24 * time.Hour
	vestingWindow = 100 * time.Hour
)

type fixture struct {
	token  *collateral.Ledger
	ledger *market.Ledger
	pool   *amm.Pool
	engine *Engine
	now    time.Time
}

func newFixture() *fixture {
	f := &fixture{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.token = collateral.NewLedger(testOperator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.ledger = market.NewLedger(testOwner, f.token, logger)
	f.pool = amm.NewPool(f.ledger, logger)
	f.engine = NewEngine(f.ledger, f.pool, testOperator, logger)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) fund(account string, amount int64) {
	f.token.Mint(account, amount)
	f.token.Approve(account, testOperator, amount)
}

func (f *fixture) open(t *testing.T, tvlThreshold int64, minParticipants int) (launchID, marketID string) {
	t.Helper()
	launchID, marketID, err := f.engine.Open(
		testOwner, "q", testOracle,
		tvlThreshold, minParticipants,
		f.now.Add(commitWindow), vestingWindow,
		f.now.Add(30*24*time.Hour),
	)
	require.NoError(t, err)
	return launchID, marketID
}

func TestOpenValidation(t *testing.T) {
	f := newFixture()
	deadline := f.now.Add(commitWindow)
	expiry := f.now.Add(30 * 24 * time.Hour)

	_, _, err := f.engine.Open(testOwner, "q", testOracle, 0, 2, deadline, vestingWindow, expiry)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.engine.Open(testOwner, "q", testOracle, 100, 0, deadline, vestingWindow, expiry)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.engine.Open(testOwner, "q", testOracle, 100, 2, deadline, 0, expiry)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.engine.Open("stranger", "q", testOracle, 100, 2, deadline, vestingWindow, expiry)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestCommitAccumulates(t *testing.T) {
	f := newFixture()
	launchID, _ := f.open(t, 1000, 5)
	f.fund("alice", 100)

	require.NoError(t, f.engine.Commit("alice", launchID, 30, 0))
	require.NoError(t, f.engine.Commit("alice", launchID, 30, 20))

	c, err := f.engine.Commitment(launchID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.AmountYes)
	assert.Equal(t, int64(20), c.AmountNo)
	assert.Equal(t, int64(80), f.token.BalanceOf(EscrowAccount))

	info, err := f.engine.Info(launchID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), info.TotalYes)
	assert.Equal(t, int64(20), info.TotalNo)
	assert.Equal(t, 1, info.Participants)
}

func TestCommitValidation(t *testing.T) {
	f := newFixture()
	launchID, _ := f.open(t, 1000, 5)
	f.fund("alice", 100)

	require.ErrorIs(t, f.engine.Commit("alice", launchID, 0, 0), domain.ErrInvalidAmount)
	require.ErrorIs(t, f.engine.Commit("alice", launchID, -1, 10), domain.ErrInvalidAmount)
	require.ErrorIs(t, f.engine.Commit("alice", "missing", 10, 0), domain.ErrNotFound)

	f.advance(commitWindow)
	require.ErrorIs(t, f.engine.Commit("alice", launchID, 10, 0), domain.ErrWindowClosed)
}

func TestGraduateRequiresThresholds(t *testing.T) {
	f := newFixture()
	launchID, _ := f.open(t, 100, 2)
	f.fund("alice", 60)

	require.NoError(t, f.engine.Commit("alice", launchID, 60, 0))

	// One participant and TVL 60: both thresholds unmet.
	require.ErrorIs(t, f.engine.Graduate(launchID), domain.ErrBadState)

	f.fund("bob", 30)
	require.NoError(t, f.engine.Commit("bob", launchID, 0, 30))

	// Two participants but TVL 90 still short.
	require.ErrorIs(t, f.engine.Graduate(launchID), domain.ErrBadState)
}

func TestGraduateDepositsAndEntitles(t *testing.T) {
	f := newFixture()
	launchID, marketID := f.open(t, 100, 2)
	f.fund("alice", 60)
	f.fund("bob", 40)

	require.NoError(t, f.engine.Commit("alice", launchID, 60, 0))
	require.NoError(t, f.engine.Commit("bob", launchID, 0, 40))
	require.NoError(t, f.engine.Graduate(launchID))

	m, err := f.ledger.Get(marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), m.ReserveYes)
	assert.Equal(t, int64(40), m.ReserveNo)
	assert.Equal(t, int64(0), f.token.BalanceOf(EscrowAccount))

	// The escrow account holds the pooled LP shares until they vest out.
	lp := f.pool.LiquidityPosition(marketID, EscrowAccount)
	assert.Equal(t, int64(60), lp.SharesYes)
	assert.Equal(t, int64(40), lp.SharesNo)

	a, err := f.engine.Commitment(launchID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(60), a.EntitledYes)
	assert.Equal(t, int64(0), a.EntitledNo)

	b, err := f.engine.Commitment(launchID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.EntitledNo)

	info, err := f.engine.Info(launchID)
	require.NoError(t, err)
	assert.Equal(t, domain.LaunchStateGraduated, info.State)
	require.NotNil(t, info.GraduatedAt)

	// Graduation is one-shot.
	require.ErrorIs(t, f.engine.Graduate(launchID), domain.ErrBadState)
}

func TestClaimVestsLinearly(t *testing.T) {
	f := newFixture()
	launchID, marketID := f.open(t, 100, 2)
	f.fund("alice", 60)
	f.fund("bob", 40)

	require.NoError(t, f.engine.Commit("alice", launchID, 60, 0))
	require.NoError(t, f.engine.Commit("bob", launchID, 0, 40))

	// Nothing claimable before graduation.
	_, _, err := f.engine.Claim("alice", launchID)
	require.ErrorIs(t, err, domain.ErrNotSettled)

	require.NoError(t, f.engine.Graduate(launchID))

	// Nothing has vested at the instant of graduation.
	claimedYes, claimedNo, err := f.engine.Claim("alice", launchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), claimedYes)
	assert.Equal(t, int64(0), claimedNo)

	f.advance(vestingWindow / 2)
	claimedYes, _, err = f.engine.Claim("alice", launchID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), claimedYes)
	assert.Equal(t, int64(30), f.pool.LiquidityPosition(marketID, "alice").SharesYes)

	// Immediately claiming again yields nothing new.
	claimedYes, _, err = f.engine.Claim("alice", launchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), claimedYes)

	f.advance(vestingWindow)
	claimedYes, _, err = f.engine.Claim("alice", launchID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), claimedYes)
	assert.Equal(t, int64(60), f.pool.LiquidityPosition(marketID, "alice").SharesYes)

	_, claimedNo, err = f.engine.Claim("bob", launchID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), claimedNo)
	assert.Equal(t, int64(0), f.pool.LiquidityPosition(marketID, EscrowAccount).SharesYes)
	assert.Equal(t, int64(0), f.pool.LiquidityPosition(marketID, EscrowAccount).SharesNo)

	_, _, err = f.engine.Claim("stranger", launchID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFullCohortVestsWithZeroResidual(t *testing.T) {
	f := newFixture()
	launchID, marketID := f.open(t, 12_000, 30)

	// 30 participants at 400 each, half on each side.
	participants := make([]string, 30)
	for i := range participants {
		name := fmt.Sprintf("p%02d", i)
		participants[i] = name
		f.fund(name, 400)
		if i%2 == 0 {
			require.NoError(t, f.engine.Commit(name, launchID, 400, 0))
		} else {
			require.NoError(t, f.engine.Commit(name, launchID, 0, 400))
		}
	}

	require.NoError(t, f.engine.Graduate(launchID))

	m, err := f.ledger.Get(marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), m.ReserveYes)
	assert.Equal(t, int64(6000), m.ReserveNo)

	f.advance(vestingWindow)
	var totalYes, totalNo int64
	for _, name := range participants {
		cy, cn, err := f.engine.Claim(name, launchID)
		require.NoError(t, err)
		assert.Equal(t, int64(400), cy+cn)
		totalYes += cy
		totalNo += cn
	}

	// Every minted share reaches a participant: no residual in escrow.
	assert.Equal(t, int64(6000), totalYes)
	assert.Equal(t, int64(6000), totalNo)
	esc := f.pool.LiquidityPosition(marketID, EscrowAccount)
	assert.Equal(t, int64(0), esc.SharesYes)
	assert.Equal(t, int64(0), esc.SharesNo)
}

func TestExpireRefundsCommitments(t *testing.T) {
	f := newFixture()
	launchID, _ := f.open(t, 1000, 5)
	f.fund("alice", 80)

	require.NoError(t, f.engine.Commit("alice", launchID, 60, 20))

	require.ErrorIs(t, f.engine.Expire(launchID), domain.ErrWindowOpen)

	f.advance(commitWindow)
	require.NoError(t, f.engine.Expire(launchID))
	assert.Equal(t, int64(80), f.token.BalanceOf("alice"))
	assert.Equal(t, int64(0), f.token.BalanceOf(EscrowAccount))

	info, err := f.engine.Info(launchID)
	require.NoError(t, err)
	assert.Equal(t, domain.LaunchStateExpired, info.State)
	assert.Equal(t, int64(0), info.TotalYes)

	require.ErrorIs(t, f.engine.Commit("alice", launchID, 10, 0), domain.ErrBadState)
	require.ErrorIs(t, f.engine.Expire(launchID), domain.ErrBadState)
}

func TestExpireRejectsWhenThresholdsMet(t *testing.T) {
	f := newFixture()
	launchID, _ := f.open(t, 100, 2)
	f.fund("alice", 60)
	f.fund("bob", 40)

	require.NoError(t, f.engine.Commit("alice", launchID, 60, 0))
	require.NoError(t, f.engine.Commit("bob", launchID, 0, 40))

	f.advance(commitWindow)
	require.ErrorIs(t, f.engine.Expire(launchID), domain.ErrBadState)

	// A launch that met its thresholds can still graduate after the deadline.
	require.NoError(t, f.engine.Graduate(launchID))
}
