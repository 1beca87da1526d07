// Package collateral implements the fungible collateral ledger the core
// escrows and pays out through. Balances are plain int64 base units; the core
// spends user funds via the allowance its operator account has been granted.
package collateral

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Ledger is an in-memory implementation of domain.CollateralToken.
type Ledger struct {
	mu         sync.Mutex
	operator   string
	balances   map[string]int64
	allowances map[string]map[string]int64 // owner -> spender -> amount
}

// NewLedger creates an empty ledger whose TransferFrom spends the allowance
// granted to the given operator account.
func NewLedger(operator string) *Ledger {
	return &Ledger{
		operator:   operator,
		balances:   make(map[string]int64),
		allowances: make(map[string]map[string]int64),
	}
}

// Mint credits newly issued collateral to an account.
func (l *Ledger) Mint(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// BalanceOf returns the free balance of an account.
func (l *Ledger) BalanceOf(account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("collateral: transfer %d from %s: %w", amount, from, domain.ErrInsufficientBalance)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// TransferFrom moves amount out of owner into to, consuming the allowance the
// owner granted to the ledger's operator.
func (l *Ledger) TransferFrom(owner, to string, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := l.allowances[owner][l.operator]
	if allowed < amount {
		return fmt.Errorf("collateral: transferFrom %d of %s: %w", amount, owner, domain.ErrInsufficientAllowance)
	}
	if l.balances[owner] < amount {
		return fmt.Errorf("collateral: transferFrom %d of %s: %w", amount, owner, domain.ErrInsufficientBalance)
	}
	l.allowances[owner][l.operator] = allowed - amount
	l.balances[owner] -= amount
	l.balances[to] += amount
	return nil
}

// Approve grants spender the right to move up to amount out of owner.
func (l *Ledger) Approve(owner, spender string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[string]int64)
	}
	l.allowances[owner][spender] = amount
}

// Allowance returns the remaining approved amount.
func (l *Ledger) Allowance(owner, spender string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender]
}

// Compile-time interface check.
var _ domain.CollateralToken = (*Ledger)(nil)
