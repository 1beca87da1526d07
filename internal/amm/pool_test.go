package amm

import (
	"io"
	"log/slog"
	"math"
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
	pool   *Pool
}

func newFixture() *fixture {
	token := collateral.NewLedger(testOperator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := market.NewLedger(testOwner, token, logger)
	return &fixture{
		token:  token,
		ledger: ledger,
		pool:   NewPool(ledger, logger),
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

func TestAddLiquidityFirstDepositMintsOneToOne(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	mintedYes, mintedNo, err := f.pool.AddLiquidity("alice", id, 60, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), mintedYes)
	assert.Equal(t, int64(40), mintedNo)

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(60), m.ReserveYes)
	assert.Equal(t, int64(40), m.ReserveNo)
	assert.Equal(t, int64(60), m.TotalSharesYes)
	assert.Equal(t, int64(40), m.TotalSharesNo)
	assert.Equal(t, int64(100), f.token.BalanceOf(market.VaultAccount))

	lp := f.pool.LiquidityPosition(id, "alice")
	assert.Equal(t, int64(60), lp.SharesYes)
	assert.Equal(t, int64(40), lp.SharesNo)
}

func TestAddLiquidityProportionalAfterPriceMove(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 60)
	f.fund("carol", 55)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)

	// Push reserveYes to 110 while share supply stays at 50.
	_, err = f.pool.Trade("bob", id, true, 50, 0)
	require.NoError(t, err)
	_, err = f.pool.Trade("bob", id, true, 10, 0)
	require.NoError(t, err)

	mintedYes, _, err := f.pool.AddLiquidityAsymmetric("carol", id, 55, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(25), mintedYes) // 55 * 50 / 110
}

func TestAddLiquidityValidation(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	_, _, err := f.pool.AddLiquidity("alice", id, 0, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.pool.AddLiquidity("alice", id, -1, 10)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = f.pool.AddLiquidity("alice", "missing", 10, 10)
	require.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestAddLiquiditySlippageBound(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	_, _, err := f.pool.AddLiquidityAsymmetric("alice", id, 10, 0, 11, 0)
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// Rejected before any state changed.
	assert.Equal(t, int64(100), f.token.BalanceOf("alice"))
	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TVL())
}

func TestRemoveLiquidityProportional(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 80)

	_, _, err := f.pool.AddLiquidity("alice", id, 60, 20)
	require.NoError(t, err)

	outYes, outNo, err := f.pool.RemoveLiquidity("alice", id, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30), outYes)
	assert.Equal(t, int64(0), outNo)
	assert.Equal(t, int64(30), f.token.BalanceOf("alice"))

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(30), m.ReserveYes)
	assert.Equal(t, int64(30), m.TotalSharesYes)
	assert.Equal(t, m.TotalDeposited-m.TotalPaidOut, m.TVL())
}

func TestRemoveLiquidityInsufficientShares(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 80)

	_, _, err := f.pool.AddLiquidity("alice", id, 60, 20)
	require.NoError(t, err)

	_, _, err = f.pool.RemoveLiquidity("alice", id, 61, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, _, err = f.pool.RemoveLiquidity("bob", id, 1, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestRemoveLiquiditySlippageBound(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 80)

	_, _, err := f.pool.AddLiquidity("alice", id, 60, 20)
	require.NoError(t, err)

	_, _, err = f.pool.RemoveLiquidityAsymmetric("alice", id, 30, 0, 31, 0)
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	lp := f.pool.LiquidityPosition(id, "alice")
	assert.Equal(t, int64(60), lp.SharesYes)
}

func TestTradeMintsAtPostDepositPrice(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 50)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)

	out, err := f.pool.Trade("bob", id, true, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(75), out) // 50 * 150 / 100

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), m.ReserveYes)
	assert.Equal(t, int64(50), m.ReserveNo)

	tp := f.pool.TraderPosition(id, "bob")
	assert.Equal(t, int64(75), tp.PositionYes)
	assert.Equal(t, int64(0), tp.PositionNo)
}

func TestQuoteLargerTradesPayMorePerUnit(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)

	small, err := f.pool.Quote(id, true, 50)
	require.NoError(t, err)
	large, err := f.pool.Quote(id, true, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(75), small)
	assert.Equal(t, int64(133), large)
	assert.Less(t, large, 2*small)
}

func TestQuoteLargePoolStaysExact(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 10_000_000_000)

	_, _, err := f.pool.AddLiquidity("alice", id, 3_000_000_000, 3_000_000_000)
	require.NoError(t, err)

	// The numerator 4e9 * (6e9 + 4e9) exceeds int64.
	out, err := f.pool.Quote(id, true, 4_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(5_714_285_714), out)

	traded, err := f.pool.Trade("alice", id, true, 4_000_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5_714_285_714), traded)
}

func TestTradeRejectsInputBeyondCapacity(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)

	_, err = f.pool.Trade("alice", id, true, math.MaxInt64, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.pool.Quote(id, true, math.MaxInt64)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestTradeSlippageBound(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 50)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)

	_, err = f.pool.Trade("bob", id, true, 50, 76)
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
	assert.Equal(t, int64(50), f.token.BalanceOf("bob"))
}

func TestTradeRejectsAfterSettlement(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)
	_, err = f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	_, err = f.pool.Trade("alice", id, true, 10, 0)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
	_, _, err = f.pool.AddLiquidity("alice", id, 10, 10)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
	_, _, err = f.pool.RemoveLiquidity("alice", id, 10, 10)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestRedeemPaysWinningSideExactlyOnce(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 60)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)

	out, err := f.pool.Trade("bob", id, true, 60, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(87), out) // 60 * 160 / 110

	_, err = f.pool.Redeem("bob", id)
	require.ErrorIs(t, err, domain.ErrNotSettled)

	_, err = f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	paid, err := f.pool.Redeem("bob", id)
	require.NoError(t, err)
	assert.Equal(t, int64(87), paid)
	assert.Equal(t, int64(87), f.token.BalanceOf("bob"))

	// Repeat redemption and empty positions are no-op successes.
	paid, err = f.pool.Redeem("bob", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), paid)

	paid, err = f.pool.Redeem("carol", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), paid)

	m, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, m.TotalDeposited-m.TotalPaidOut, m.TVL())
}

func TestRedeemLosingSidePaysNothing(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 100)
	f.fund("bob", 40)

	_, _, err := f.pool.AddLiquidity("alice", id, 50, 50)
	require.NoError(t, err)
	_, err = f.pool.Trade("bob", id, false, 40, 0)
	require.NoError(t, err)

	_, err = f.ledger.Settle(testOracle, id, true)
	require.NoError(t, err)

	paid, err := f.pool.Redeem("bob", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), paid)
}

func TestCreditPosition(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)

	require.NoError(t, f.pool.CreditPosition(id, "alice", 30, 10))
	require.NoError(t, f.pool.CreditPosition(id, "alice", 5, 0))

	tp := f.pool.TraderPosition(id, "alice")
	assert.Equal(t, int64(35), tp.PositionYes)
	assert.Equal(t, int64(10), tp.PositionNo)

	require.ErrorIs(t, f.pool.CreditPosition(id, "alice", -1, 0), domain.ErrInvalidAmount)
	require.ErrorIs(t, f.pool.CreditPosition("missing", "alice", 1, 0), domain.ErrUnknownMarket)
}

func TestTransferShares(t *testing.T) {
	f := newFixture()
	id := f.newMarket(t)
	f.fund("alice", 80)

	_, _, err := f.pool.AddLiquidity("alice", id, 60, 20)
	require.NoError(t, err)

	require.NoError(t, f.pool.TransferShares(id, "alice", "bob", 10, 5))

	assert.Equal(t, int64(50), f.pool.LiquidityPosition(id, "alice").SharesYes)
	assert.Equal(t, int64(10), f.pool.LiquidityPosition(id, "bob").SharesYes)
	assert.Equal(t, int64(5), f.pool.LiquidityPosition(id, "bob").SharesNo)

	err = f.pool.TransferShares(id, "bob", "alice", 11, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientShares)
}
