package market

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/collateral"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

const (
	testOwner    = "test:owner"
	testOperator = "test:operator"
	testOracle   = "test:oracle"
)

func newTestLedger() (*collateral.Ledger, *Ledger) {
	token := collateral.NewLedger(testOperator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return token, NewLedger(testOwner, token, logger)
}

func fund(token *collateral.Ledger, account string, amount int64) {
	token.Mint(account, amount)
	token.Approve(account, testOperator, amount)
}

func expiry() time.Time {
	return time.Now().UTC().Add(24 * time.Hour)
}

func TestCreateMarketSeedsReserves(t *testing.T) {
	token, l := newTestLedger()
	fund(token, testOwner, 100)

	m, err := l.CreateMarket(testOwner, "will it rain", testOracle, 60, 40, expiry())
	require.NoError(t, err)

	assert.Equal(t, int64(60), m.ReserveYes)
	assert.Equal(t, int64(40), m.ReserveNo)
	assert.Equal(t, int64(100), m.TotalDeposited)
	assert.Equal(t, int64(0), m.TotalPaidOut)
	assert.Equal(t, int64(100), token.BalanceOf(VaultAccount))
	assert.Equal(t, int64(0), token.BalanceOf(testOwner))
}

func TestCreateMarketZeroSeed(t *testing.T) {
	_, l := newTestLedger()

	m, err := l.CreateMarket(testOwner, "unseeded", testOracle, 0, 0, expiry())
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TVL())
}

func TestCreateMarketRequiresCapability(t *testing.T) {
	token, l := newTestLedger()
	fund(token, "alice", 100)

	_, err := l.CreateMarket("alice", "q", testOracle, 50, 50, expiry())
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	assert.Equal(t, int64(100), token.BalanceOf("alice"))

	require.NoError(t, l.AuthorizeCreator(testOwner, "alice"))
	assert.True(t, l.IsAuthorizedCreator("alice"))

	_, err = l.CreateMarket("alice", "q", testOracle, 50, 50, expiry())
	require.NoError(t, err)
}

func TestCapabilityMutationIsOwnerOnly(t *testing.T) {
	_, l := newTestLedger()

	require.ErrorIs(t, l.AuthorizeCreator("alice", "bob"), domain.ErrNotAuthorized)
	require.ErrorIs(t, l.RevokeCreator("alice", testOwner), domain.ErrNotAuthorized)

	require.NoError(t, l.AuthorizeCreator(testOwner, "bob"))
	require.NoError(t, l.RevokeCreator(testOwner, "bob"))
	assert.False(t, l.IsAuthorizedCreator("bob"))
}

func TestGetUnknownMarket(t *testing.T) {
	_, l := newTestLedger()

	_, err := l.Get("missing")
	require.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestCreditAndPayOutConservation(t *testing.T) {
	token, l := newTestLedger()
	fund(token, testOwner, 100)
	m, err := l.CreateMarket(testOwner, "q", testOracle, 60, 40, expiry())
	require.NoError(t, err)

	require.NoError(t, l.Credit(m.ID, 30, 10))
	got, err := l.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), got.ReserveYes)
	assert.Equal(t, int64(50), got.ReserveNo)
	assert.Equal(t, int64(140), got.TotalDeposited)

	// Credit records funds already in the vault; move them so PayOut can
	// settle against real balances.
	token.Mint(VaultAccount, 40)

	require.NoError(t, l.PayOut(m.ID, 50, 20, "alice"))
	got, err = l.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.ReserveYes)
	assert.Equal(t, int64(30), got.ReserveNo)
	assert.Equal(t, int64(70), got.TotalPaidOut)
	assert.Equal(t, got.TotalDeposited-got.TotalPaidOut, got.TVL())
	assert.Equal(t, int64(70), token.BalanceOf("alice"))
}

func TestPayOutExceedingReserves(t *testing.T) {
	token, l := newTestLedger()
	fund(token, testOwner, 100)
	m, err := l.CreateMarket(testOwner, "q", testOracle, 60, 40, expiry())
	require.NoError(t, err)

	require.ErrorIs(t, l.PayOut(m.ID, 61, 0, "alice"), domain.ErrInsufficientBalance)
	require.ErrorIs(t, l.PayOut(m.ID, 0, 41, "alice"), domain.ErrInsufficientBalance)
	require.ErrorIs(t, l.PayOut(m.ID, -1, 0, "alice"), domain.ErrInvalidAmount)

	got, err := l.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalPaidOut)
}

func TestPayOutRollsBackOnTransferFailure(t *testing.T) {
	token, l := newTestLedger()
	m, err := l.CreateMarket(testOwner, "q", testOracle, 0, 0, expiry())
	require.NoError(t, err)

	// Reserves claim 100 but the vault holds nothing, so the transfer fails
	// and the accounting must be restored.
	require.NoError(t, l.Credit(m.ID, 100, 0))

	err = l.PayOut(m.ID, 100, 0, "alice")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	got, err := l.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.ReserveYes)
	assert.Equal(t, int64(0), got.TotalPaidOut)
	assert.Equal(t, int64(0), token.BalanceOf("alice"))
}

func TestMintAndBurnShares(t *testing.T) {
	_, l := newTestLedger()
	m, err := l.CreateMarket(testOwner, "q", testOracle, 0, 0, expiry())
	require.NoError(t, err)

	require.NoError(t, l.MintShares(m.ID, 60, 40))
	require.NoError(t, l.BurnShares(m.ID, 10, 40))

	got, err := l.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.TotalSharesYes)
	assert.Equal(t, int64(0), got.TotalSharesNo)

	require.ErrorIs(t, l.BurnShares(m.ID, 51, 0), domain.ErrInsufficientShares)
}

func TestSettleOracleOnly(t *testing.T) {
	_, l := newTestLedger()
	m, err := l.CreateMarket(testOwner, "q", testOracle, 0, 0, expiry())
	require.NoError(t, err)

	_, err = l.Settle("not-the-oracle", m.ID, true)
	require.ErrorIs(t, err, domain.ErrNotOracle)

	settled, err := l.Settle(testOracle, m.ID, true)
	require.NoError(t, err)
	assert.True(t, settled.Settled)
	assert.True(t, settled.OutcomeYes)
	require.NotNil(t, settled.SettledAt)
}

func TestSettleIsOneShot(t *testing.T) {
	_, l := newTestLedger()
	m, err := l.CreateMarket(testOwner, "q", testOracle, 0, 0, expiry())
	require.NoError(t, err)

	_, err = l.Settle(testOracle, m.ID, false)
	require.NoError(t, err)

	// A second settlement must reject even with the opposite outcome.
	_, err = l.Settle(testOracle, m.ID, true)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)

	got, err := l.Get(m.ID)
	require.NoError(t, err)
	assert.False(t, got.OutcomeYes)
}

func TestSettleUnknownMarket(t *testing.T) {
	_, l := newTestLedger()

	_, err := l.Settle(testOracle, "missing", true)
	require.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestListReturnsCopies(t *testing.T) {
	_, l := newTestLedger()
	_, err := l.CreateMarket(testOwner, "a", testOracle, 0, 0, expiry())
	require.NoError(t, err)
	_, err = l.CreateMarket(testOwner, "b", testOracle, 0, 0, expiry())
	require.NoError(t, err)

	out := l.List()
	require.Len(t, out, 2)
	out[0].ReserveYes = 999

	for _, m := range l.List() {
		assert.NotEqual(t, int64(999), m.ReserveYes)
	}
}
