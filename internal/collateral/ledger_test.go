package collateral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

const operator = "test:operator"

func TestMintAndBalance(t *testing.T) {
	l := NewLedger(operator)

	assert.Equal(t, int64(0), l.BalanceOf("alice"))

	l.Mint("alice", 500)
	l.Mint("alice", 250)

	assert.Equal(t, int64(750), l.BalanceOf("alice"))
	assert.Equal(t, int64(0), l.BalanceOf("bob"))
}

func TestTransfer(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 100)

	require.NoError(t, l.Transfer("alice", "bob", 60))
	assert.Equal(t, int64(40), l.BalanceOf("alice"))
	assert.Equal(t, int64(60), l.BalanceOf("bob"))
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 10)

	err := l.Transfer("alice", "bob", 11)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(10), l.BalanceOf("alice"))
	assert.Equal(t, int64(0), l.BalanceOf("bob"))
}

func TestTransferNegativeAmount(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 10)

	err := l.Transfer("alice", "bob", -1)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestTransferFromConsumesOperatorAllowance(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 100)
	l.Approve("alice", operator, 80)

	require.NoError(t, l.TransferFrom("alice", "vault", 50))
	assert.Equal(t, int64(50), l.BalanceOf("alice"))
	assert.Equal(t, int64(50), l.BalanceOf("vault"))
	assert.Equal(t, int64(30), l.Allowance("alice", operator))
}

func TestTransferFromInsufficientAllowance(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 100)
	l.Approve("alice", operator, 20)

	err := l.TransferFrom("alice", "vault", 21)
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)
	assert.Equal(t, int64(100), l.BalanceOf("alice"))
	assert.Equal(t, int64(20), l.Allowance("alice", operator))
}

func TestTransferFromInsufficientBalance(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 10)
	l.Approve("alice", operator, 100)

	err := l.TransferFrom("alice", "vault", 50)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	// The allowance is only consumed when the transfer goes through.
	assert.Equal(t, int64(100), l.Allowance("alice", operator))
}

func TestTransferFromIgnoresOtherSpenders(t *testing.T) {
	l := NewLedger(operator)
	l.Mint("alice", 100)
	l.Approve("alice", "someone-else", 100)

	err := l.TransferFrom("alice", "vault", 10)
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)
}

func TestApproveOverwrites(t *testing.T) {
	l := NewLedger(operator)
	l.Approve("alice", operator, 100)
	l.Approve("alice", operator, 5)

	assert.Equal(t, int64(5), l.Allowance("alice", operator))
}
