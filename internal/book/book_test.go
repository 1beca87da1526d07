package book

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/collateral"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/market"
)

const (
	testOwner    = "test:owner"
	testOperator = "test:operator"
	testOracle   = "test:oracle"
)

type fixture struct {
	token  *collateral.Ledger
	ledger *market.Ledger
	book   *Book
}

func newFixture() *fixture {
	token := collateral.NewLedger(testOperator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := market.NewLedger(testOwner, token, logger)
	return &fixture{
		token:  token,
		ledger: ledger,
		book:   NewBook(ledger, logger),
	}
}

func (f *fixture) fund(account string, amount int64) {
	f.token.Mint(account, amount)
	f.token.Approve(account, testOperator, amount)
}

func (f *fixture) newMarket(t *testing.T) string {
	t.Helper()
	m, err := f.ledger.CreateMarket(testOwner, "q", testOracle, 0, 0, time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	return m.ID
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	_, _, err := f.book.PlaceOrder("alice", id, true, 0, 10)
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, _, err = f.book.PlaceOrder("alice", id, true, 100, 10)
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, _, err = f.book.PlaceOrder("alice", id, true, 50, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.book.PlaceOrder("alice", "missing", true, 50, 10)
	require.ErrorIs(t, err, domain.ErrUnknownMarket)

	_, _, err = f.book.PlaceOrder("broke", id, true, 50, 10)
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)
}

func TestPlaceOrderRejectsAfterSettlement(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	_, err := f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	_, _, err = f.book.PlaceOrder("alice", id, true, 50, 10)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestMatchComplementaryPrices(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 60)
	f.fund("bob", 40)

	yes, fills, err := f.book.PlaceOrder("alice", id, true, 60, 60)
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, int64(0), yes.Filled)

	no, fills, err := f.book.PlaceOrder("bob", id, false, 40, 40)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(40), fills[0].Amount)
	assert.Equal(t, yes.ID, fills[0].YesOrderID)
	assert.Equal(t, no.ID, fills[0].NoOrderID)
	assert.Equal(t, int64(60), fills[0].YesPrice)
	assert.Equal(t, int64(40), fills[0].NoPrice)
	assert.True(t, no.Terminal())

	// Matched collateral from both sides backs the market; the YES remainder
	// stays escrowed.
	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(40), m.ReserveYes)
	assert.Equal(t, int64(40), m.ReserveNo)
	assert.Equal(t, int64(80), f.token.BalanceOf(market.VaultAccount))
	assert.Equal(t, int64(20), f.token.BalanceOf(EscrowAccount))

	got, err := f.book.GetOrder(yes.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Remaining())
}

func TestNoMatchWhenPricesSumOverHundred(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 50)
	f.fund("bob", 60)

	_, _, err := f.book.PlaceOrder("alice", id, false, 50, 50)
	require.NoError(t, err)

	_, fills, err := f.book.PlaceOrder("bob", id, true, 60, 60)
	require.NoError(t, err)
	assert.Empty(t, fills)

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TVL())
	assert.Equal(t, int64(110), f.token.BalanceOf(EscrowAccount))
}

func TestMatchCheapestOppositeFirst(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("carol", 10)
	f.fund("dave", 10)
	f.fund("alice", 25)

	cheap, _, err := f.book.PlaceOrder("carol", id, false, 30, 10)
	require.NoError(t, err)
	dear, _, err := f.book.PlaceOrder("dave", id, false, 40, 10)
	require.NoError(t, err)

	_, fills, err := f.book.PlaceOrder("alice", id, true, 60, 25)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, cheap.ID, fills[0].NoOrderID)
	assert.Equal(t, int64(10), fills[0].Amount)
	assert.Equal(t, dear.ID, fills[1].NoOrderID)
	assert.Equal(t, int64(10), fills[1].Amount)

	// The unmatched remainder rests on the YES side.
	levels, err := f.book.OrderBook(id, true)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, domain.BookLevel{Price: 60, Size: 5}, levels[0])
}

func TestMatchFIFOWithinPriceLevel(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("carol", 10)
	f.fund("dave", 10)
	f.fund("alice", 10)

	first, _, err := f.book.PlaceOrder("carol", id, false, 40, 10)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("dave", id, false, 40, 10)
	require.NoError(t, err)

	_, fills, err := f.book.PlaceOrder("alice", id, true, 60, 10)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, first.ID, fills[0].NoOrderID)
}

func TestCancelOrderRefundsRemainder(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 50)
	f.fund("bob", 20)

	o, _, err := f.book.PlaceOrder("alice", id, true, 60, 50)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("bob", id, false, 40, 20)
	require.NoError(t, err)

	_, err = f.book.CancelOrder("bob", o.ID)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	refunded, err := f.book.CancelOrder("alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), refunded)
	assert.Equal(t, int64(30), f.token.BalanceOf("alice"))

	_, err = f.book.CancelOrder("alice", o.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	_, err = f.book.CancelOrder("alice", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelStaysAvailableAfterSettlement(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 50)

	o, _, err := f.book.PlaceOrder("alice", id, true, 60, 50)
	require.NoError(t, err)
	_, err = f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	refunded, err := f.book.CancelOrder("alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), refunded)
	assert.Equal(t, int64(50), f.token.BalanceOf("alice"))
}

func TestClaimPaysWinningFillsExactlyOnce(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 100)

	_, _, err := f.book.PlaceOrder("alice", id, true, 60, 100)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("bob", id, false, 40, 100)
	require.NoError(t, err)

	_, err = f.book.ClaimPosition("alice", id)
	require.ErrorIs(t, err, domain.ErrNotSettled)

	_, err = f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	// 100 filled at 60 cents pays 100*100/60 units.
	paid, err := f.book.ClaimPosition("alice", id)
	require.NoError(t, err)
	assert.Equal(t, int64(166), paid)
	assert.Equal(t, int64(166), f.token.BalanceOf("alice"))

	// Repeat claims after success are no-ops.
	paid, err = f.book.ClaimPosition("alice", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), paid)

	// The losing side never had anything to claim.
	_, err = f.book.ClaimPosition("bob", id)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, m.TotalDeposited-m.TotalPaidOut, m.TVL())
}

func TestClaimCappedAtMarketReserves(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 100)

	// Prices sum to exactly 100, so both orders fill completely.
	_, _, err := f.book.PlaceOrder("alice", id, false, 20, 100)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("bob", id, true, 80, 100)
	require.NoError(t, err)

	_, err = f.ledger.Settle(testOracle, id, false)
	require.NoError(t, err)

	// 100 filled at 20 cents entitles 500 units, but the market only ever
	// collected 200. The claim pays out everything the market holds rather
	// than rejecting and stranding the matched collateral.
	paid, err := f.book.ClaimPosition("alice", id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), paid)
	assert.Equal(t, int64(200), f.token.BalanceOf("alice"))

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TVL())

	// Repeat claims after the capped payout are no-ops.
	paid, err = f.book.ClaimPosition("alice", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), paid)
}

func TestClaimWithNoFills(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 10)

	// Resting but unmatched: nothing to claim even on the winning side.
	_, _, err := f.book.PlaceOrder("alice", id, true, 60, 10)
	require.NoError(t, err)
	_, err = f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	_, err = f.book.ClaimPosition("alice", id)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestOrderBookAggregatesLevels(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 30)

	_, _, err := f.book.PlaceOrder("alice", id, true, 60, 10)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("alice", id, true, 60, 15)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("alice", id, true, 55, 5)
	require.NoError(t, err)

	levels, err := f.book.OrderBook(id, true)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, domain.BookLevel{Price: 60, Size: 25}, levels[0])
	assert.Equal(t, domain.BookLevel{Price: 55, Size: 5}, levels[1])

	empty, err := f.book.OrderBook(id, false)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.book.OrderBook("missing", true)
	require.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestBestBids(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 20)

	_, ok, err := f.book.BestYesBid(id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.book.PlaceOrder("alice", id, true, 55, 10)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("alice", id, true, 60, 10)
	require.NoError(t, err)

	price, ok, err := f.book.BestYesBid(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(60), price)

	_, ok, err = f.book.BestNoBid(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 10)
	f.fund("bob", 10)

	_, _, err := f.book.PlaceOrder("alice", id, true, 55, 10)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("bob", id, false, 50, 10)
	require.NoError(t, err)

	snap, err := f.book.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.MarketID)
	assert.Equal(t, int64(55), snap.BestYes)
	assert.Equal(t, int64(50), snap.BestNo)
	require.Len(t, snap.YesLevels, 1)
	require.Len(t, snap.NoLevels, 1)
}

func TestListByOwner(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 20)
	f.fund("bob", 10)

	_, _, err := f.book.PlaceOrder("alice", id, true, 55, 10)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("alice", id, true, 60, 10)
	require.NoError(t, err)
	_, _, err = f.book.PlaceOrder("bob", id, true, 50, 10)
	require.NoError(t, err)

	out := f.book.ListByOwner(id, "alice")
	require.Len(t, out, 2)
	for _, o := range out {
		assert.Equal(t, "alice", o.Owner)
	}
}
