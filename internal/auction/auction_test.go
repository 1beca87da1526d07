package auction

import (
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

	commitWindow = time.Hour
	revealWindow = time.Hour
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
	f.engine = NewEngine(f.ledger, f.pool, logger)
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

func (f *fixture) open(t *testing.T) (auctionID, marketID string) {
	t.Helper()
	auctionID, marketID, err := f.engine.Open(testOwner, "q", testOracle, commitWindow, revealWindow, f.now.Add(48*time.Hour))
	require.NoError(t, err)
	return auctionID, marketID
}

func TestCommitHash(t *testing.T) {
	a := CommitHash(50, true, []byte("salt"), 100)
	b := CommitHash(50, true, []byte("salt"), 100)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, CommitHash(51, true, []byte("salt"), 100))
	assert.NotEqual(t, a, CommitHash(50, false, []byte("salt"), 100))
	assert.NotEqual(t, a, CommitHash(50, true, []byte("other"), 100))
	assert.NotEqual(t, a, CommitHash(50, true, []byte("salt"), 101))
}

func TestOpenValidation(t *testing.T) {
	f := newFixture()

	_, _, err := f.engine.Open(testOwner, "q", testOracle, 0, revealWindow, f.now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.engine.Open("stranger", "q", testOracle, commitWindow, revealWindow, f.now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestOpenCreatesUnseededMarket(t *testing.T) {
	f := newFixture()
	auctionID, marketID := f.open(t)

	m, err := f.ledger.Get(marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TVL())

	state, gotMarket, commitEnd, revealEnd, err := f.engine.Info(auctionID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStateCommit, state)
	assert.Equal(t, marketID, gotMarket)
	assert.Equal(t, f.now.Add(commitWindow), commitEnd)
	assert.Equal(t, f.now.Add(commitWindow+revealWindow), revealEnd)
}

func TestCommitEscrowsDeposit(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)
	f.fund("alice", 100)

	h := CommitHash(50, true, []byte("a"), 100)
	require.NoError(t, f.engine.Commit("alice", auctionID, h, 100))
	assert.Equal(t, int64(0), f.token.BalanceOf("alice"))
	assert.Equal(t, int64(100), f.token.BalanceOf(EscrowAccount))

	// One commitment per bidder.
	err := f.engine.Commit("alice", auctionID, h, 100)
	require.ErrorIs(t, err, domain.ErrAlreadyCommitted)
}

func TestCommitWindowEnforced(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)
	f.fund("alice", 100)

	require.ErrorIs(t, f.engine.Commit("alice", auctionID, [32]byte{}, 0), domain.ErrInvalidAmount)
	require.ErrorIs(t, f.engine.Commit("alice", "missing", [32]byte{}, 10), domain.ErrNotFound)

	f.advance(commitWindow)
	err := f.engine.Commit("alice", auctionID, [32]byte{}, 100)
	require.ErrorIs(t, err, domain.ErrWindowClosed)
}

func TestRevealValidation(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)
	f.fund("alice", 100)

	salt := []byte("a")
	h := CommitHash(50, true, salt, 100)
	require.NoError(t, f.engine.Commit("alice", auctionID, h, 100))

	// Reveal window has not opened yet.
	err := f.engine.Reveal("alice", auctionID, 50, true, salt, 100)
	require.ErrorIs(t, err, domain.ErrWindowOpen)

	f.advance(commitWindow)

	err = f.engine.Reveal("bob", auctionID, 50, true, salt, 100)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = f.engine.Reveal("alice", auctionID, 50, true, salt, 99)
	require.ErrorIs(t, err, domain.ErrBadReveal)

	err = f.engine.Reveal("alice", auctionID, 50, true, []byte("wrong"), 100)
	require.ErrorIs(t, err, domain.ErrBadReveal)

	err = f.engine.Reveal("alice", auctionID, 51, true, salt, 100)
	require.ErrorIs(t, err, domain.ErrBadReveal)

	require.NoError(t, f.engine.Reveal("alice", auctionID, 50, true, salt, 100))

	// Double reveal rejects.
	err = f.engine.Reveal("alice", auctionID, 50, true, salt, 100)
	require.ErrorIs(t, err, domain.ErrBadState)
}

func TestRevealAfterWindowCloses(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)
	f.fund("alice", 100)

	salt := []byte("a")
	h := CommitHash(50, true, salt, 100)
	require.NoError(t, f.engine.Commit("alice", auctionID, h, 100))

	f.advance(commitWindow + revealWindow)
	err := f.engine.Reveal("alice", auctionID, 50, true, salt, 100)
	require.ErrorIs(t, err, domain.ErrWindowClosed)
}

func TestFinalizeClearsAtWeightedMedian(t *testing.T) {
	f := newFixture()
	auctionID, marketID := f.open(t)
	f.fund("alice", 100)
	f.fund("bob", 200)
	f.fund("carol", 200)

	saltA, saltB, saltC := []byte("a"), []byte("b"), []byte("c")
	require.NoError(t, f.engine.Commit("alice", auctionID, CommitHash(50, true, saltA, 100), 100))
	require.NoError(t, f.engine.Commit("bob", auctionID, CommitHash(40, false, saltB, 200), 200))
	require.NoError(t, f.engine.Commit("carol", auctionID, CommitHash(50, false, saltC, 200), 200))

	f.advance(commitWindow)
	require.NoError(t, f.engine.Reveal("alice", auctionID, 50, true, saltA, 100))
	require.NoError(t, f.engine.Reveal("bob", auctionID, 40, false, saltB, 200))
	require.NoError(t, f.engine.Reveal("carol", auctionID, 50, false, saltC, 200))

	f.advance(revealWindow)
	result, err := f.engine.Finalize(auctionID)
	require.NoError(t, err)

	// Normalized prices 50 (alice), 60 (bob at NO 40), 50 (carol at NO 50);
	// half of 500 total weight is reached at 50.
	assert.Equal(t, int64(50), result.ClearingPrice)
	assert.Equal(t, int64(100), result.SeededYes)
	assert.Equal(t, int64(100), result.SeededNo)

	require.Len(t, result.Fills, 3)
	byBidder := make(map[string]domain.AuctionFill)
	for _, fl := range result.Fills {
		byBidder[fl.Bidder] = fl
	}

	// YES side is the thin side: alice fills in full. The NO side's 400 gets
	// pro-rated down to the matched 100.
	assert.Equal(t, int64(100), byBidder["alice"].Filled)
	assert.Equal(t, int64(0), byBidder["alice"].Refund)
	assert.Equal(t, int64(200), byBidder["alice"].Units)

	assert.Equal(t, int64(50), byBidder["bob"].Filled)
	assert.Equal(t, int64(150), byBidder["bob"].Refund)
	assert.Equal(t, int64(100), byBidder["bob"].Units)

	assert.Equal(t, int64(50), byBidder["carol"].Filled)
	assert.Equal(t, int64(150), byBidder["carol"].Refund)
	assert.Equal(t, int64(100), byBidder["carol"].Units)

	assert.Equal(t, int64(150), f.token.BalanceOf("bob"))
	assert.Equal(t, int64(150), f.token.BalanceOf("carol"))
	assert.Equal(t, int64(0), f.token.BalanceOf(EscrowAccount))
	assert.Equal(t, int64(200), f.token.BalanceOf(market.VaultAccount))

	m, err := f.ledger.Get(marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), m.ReserveYes)
	assert.Equal(t, int64(100), m.ReserveNo)

	assert.Equal(t, int64(200), f.pool.TraderPosition(marketID, "alice").PositionYes)
	assert.Equal(t, int64(100), f.pool.TraderPosition(marketID, "bob").PositionNo)
	assert.Equal(t, int64(100), f.pool.TraderPosition(marketID, "carol").PositionNo)

	got, err := f.engine.Result(auctionID)
	require.NoError(t, err)
	assert.Equal(t, result.ClearingPrice, got.ClearingPrice)
}

func TestFinalizeIsDeterministic(t *testing.T) {
	f := newFixture()
	f.fund("alice", 200)
	f.fund("bob", 400)
	f.fund("carol", 400)

	// Run the same auction twice: identical commits revealed identically, in
	// the same order.
	run := func() domain.AuctionResult {
		auctionID, _ := f.open(t)
		saltA, saltB, saltC := []byte("a"), []byte("b"), []byte("c")
		require.NoError(t, f.engine.Commit("alice", auctionID, CommitHash(50, true, saltA, 100), 100))
		require.NoError(t, f.engine.Commit("bob", auctionID, CommitHash(40, false, saltB, 200), 200))
		require.NoError(t, f.engine.Commit("carol", auctionID, CommitHash(50, false, saltC, 200), 200))

		f.advance(commitWindow)
		require.NoError(t, f.engine.Reveal("alice", auctionID, 50, true, saltA, 100))
		require.NoError(t, f.engine.Reveal("bob", auctionID, 40, false, saltB, 200))
		require.NoError(t, f.engine.Reveal("carol", auctionID, 50, false, saltC, 200))

		f.advance(revealWindow)
		result, err := f.engine.Finalize(auctionID)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first.ClearingPrice, second.ClearingPrice)
	assert.Equal(t, first.SeededYes, second.SeededYes)
	assert.Equal(t, first.SeededNo, second.SeededNo)
	require.Len(t, second.Fills, len(first.Fills))
	for i := range first.Fills {
		assert.Equal(t, first.Fills[i], second.Fills[i])
	}
}

func TestFinalizeBeforeRevealEnd(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)

	f.advance(commitWindow)
	_, err := f.engine.Finalize(auctionID)
	require.ErrorIs(t, err, domain.ErrWindowOpen)
}

func TestFinalizeIsOneShot(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)

	f.advance(commitWindow + revealWindow)
	_, err := f.engine.Finalize(auctionID)
	require.NoError(t, err)

	_, err = f.engine.Finalize(auctionID)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)
}

func TestFinalizeWithoutRevealsRefundsEverything(t *testing.T) {
	f := newFixture()
	auctionID, marketID := f.open(t)
	f.fund("alice", 100)
	f.fund("bob", 200)

	require.NoError(t, f.engine.Commit("alice", auctionID, CommitHash(50, true, []byte("a"), 100), 100))
	require.NoError(t, f.engine.Commit("bob", auctionID, CommitHash(40, false, []byte("b"), 200), 200))

	f.advance(commitWindow + revealWindow)
	result, err := f.engine.Finalize(auctionID)
	require.NoError(t, err)
	assert.Equal(t, marketID, result.MarketID)
	assert.Equal(t, int64(0), result.SeededYes)

	assert.Equal(t, int64(100), f.token.BalanceOf("alice"))
	assert.Equal(t, int64(200), f.token.BalanceOf("bob"))
	assert.Equal(t, int64(0), f.token.BalanceOf(EscrowAccount))

	state, _, _, _, err := f.engine.Info(auctionID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStateExpired, state)
}

func TestFinalizeOneSidedRefundsEverything(t *testing.T) {
	f := newFixture()
	auctionID, marketID := f.open(t)
	f.fund("alice", 100)

	salt := []byte("a")
	require.NoError(t, f.engine.Commit("alice", auctionID, CommitHash(50, true, salt, 100), 100))
	f.advance(commitWindow)
	require.NoError(t, f.engine.Reveal("alice", auctionID, 50, true, salt, 100))

	f.advance(revealWindow)
	result, err := f.engine.Finalize(auctionID)
	require.NoError(t, err)

	// No NO-side collateral: nothing matches and the escrow flows back.
	assert.Equal(t, int64(0), result.SeededYes)
	assert.Equal(t, int64(100), f.token.BalanceOf("alice"))

	m, err := f.ledger.Get(marketID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TVL())
}

func TestResultBeforeFinalize(t *testing.T) {
	f := newFixture()
	auctionID, _ := f.open(t)

	_, err := f.engine.Result(auctionID)
	require.ErrorIs(t, err, domain.ErrBadState)
}
