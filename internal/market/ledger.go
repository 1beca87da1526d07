// Package market implements the per-market ledger: a bounds-checked market
// table, the authorized-creator capability set, conservation accounting over
// both reserves, and one-shot settlement consulted by every venue.
package market

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// VaultAccount holds every unit of collateral counted in market reserves.
const VaultAccount = "marketcore:vault"

// Ledger owns all market records. Every reserve mutation in the system goes
// through it so the conservation equation
// (reserveYes + reserveNo == deposited - paidOut) has a single enforcement
// point.
type Ledger struct {
	mu       sync.RWMutex
	owner    string
	token    domain.CollateralToken
	markets  map[string]*domain.Market
	creators map[string]bool
	guards   map[string]*sync.Mutex
	logger   *slog.Logger
}

// NewLedger creates an empty ledger. The owner account is the only one that
// may mutate the authorized-creator set.
func NewLedger(owner string, token domain.CollateralToken, logger *slog.Logger) *Ledger {
	return &Ledger{
		owner:    owner,
		token:    token,
		markets:  make(map[string]*domain.Market),
		creators: map[string]bool{owner: true},
		guards:   make(map[string]*sync.Mutex),
		logger:   logger.With(slog.String("component", "market_ledger")),
	}
}

// Guard acquires the per-market operation lock and returns its release
// function. Every state-mutating venue operation runs under this lock, which
// is what makes operations against one market totally ordered.
func (l *Ledger) Guard(marketID string) func() {
	l.mu.Lock()
	g, ok := l.guards[marketID]
	if !ok {
		g = &sync.Mutex{}
		l.guards[marketID] = g
	}
	l.mu.Unlock()
	g.Lock()
	return g.Unlock
}

// AuthorizeCreator adds an account to the capability set of accounts allowed
// to create and seed markets. Only the ledger owner may call it.
func (l *Ledger) AuthorizeCreator(caller, account string) error {
	if caller != l.owner {
		return fmt.Errorf("market: authorize creator: %w", domain.ErrNotAuthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creators[account] = true
	return nil
}

// RevokeCreator removes an account from the capability set. Only the ledger
// owner may call it.
func (l *Ledger) RevokeCreator(caller, account string) error {
	if caller != l.owner {
		return fmt.Errorf("market: revoke creator: %w", domain.ErrNotAuthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.creators, account)
	return nil
}

// IsAuthorizedCreator reports whether an account may create markets.
func (l *Ledger) IsAuthorizedCreator(account string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.creators[account]
}

// CreateMarket registers a new market seeded with the given reserve split,
// pulled from the creator's collateral. Zero seeds are allowed: the auction
// and launch funnels create an empty market first and fund it on finalize or
// graduation.
func (l *Ledger) CreateMarket(creator, question, oracle string, seedYes, seedNo int64, expiry time.Time) (domain.Market, error) {
	if seedYes < 0 || seedNo < 0 {
		return domain.Market{}, fmt.Errorf("market: create: %w", domain.ErrInvalidAmount)
	}
	if !l.IsAuthorizedCreator(creator) {
		return domain.Market{}, fmt.Errorf("market: create by %s: %w", creator, domain.ErrNotAuthorized)
	}

	if seed := seedYes + seedNo; seed > 0 {
		if err := l.token.TransferFrom(creator, VaultAccount, seed); err != nil {
			return domain.Market{}, fmt.Errorf("market: create: seed transfer: %w", err)
		}
	}

	m := &domain.Market{
		ID:             uuid.NewString(),
		Question:       question,
		Creator:        creator,
		Oracle:         oracle,
		ReserveYes:     seedYes,
		ReserveNo:      seedNo,
		TotalDeposited: seedYes + seedNo,
		Expiry:         expiry,
		CreatedAt:      time.Now().UTC(),
	}

	l.mu.Lock()
	l.markets[m.ID] = m
	l.mu.Unlock()

	l.logger.Info("market created",
		slog.String("market_id", m.ID),
		slog.Int64("seed_yes", seedYes),
		slog.Int64("seed_no", seedNo),
	)
	return *m, nil
}

// Get returns a copy of the market record, failing closed on unknown ids.
func (l *Ledger) Get(id string) (domain.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market: get %s: %w", id, domain.ErrUnknownMarket)
	}
	return *m, nil
}

// List returns a copy of every market record.
func (l *Ledger) List() []domain.Market {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Market, 0, len(l.markets))
	for _, m := range l.markets {
		out = append(out, *m)
	}
	return out
}

// Credit records collateral that has already been moved into the vault as
// belonging to the given market's reserves.
func (l *Ledger) Credit(id string, dYes, dNo int64) error {
	if dYes < 0 || dNo < 0 {
		return fmt.Errorf("market: credit %s: %w", id, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markets[id]
	if !ok {
		return fmt.Errorf("market: credit %s: %w", id, domain.ErrUnknownMarket)
	}
	m.ReserveYes += dYes
	m.ReserveNo += dNo
	m.TotalDeposited += dYes + dNo
	return nil
}

// PayOut debits the requested amounts from each reserve, records them as paid
// out, and only then transfers the collateral from the vault to the
// recipient. Accounting strictly precedes the external transfer so a
// re-entrant call observes consistent state.
func (l *Ledger) PayOut(id string, fromYes, fromNo int64, to string) error {
	if fromYes < 0 || fromNo < 0 {
		return fmt.Errorf("market: pay out %s: %w", id, domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	m, ok := l.markets[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("market: pay out %s: %w", id, domain.ErrUnknownMarket)
	}
	if m.ReserveYes < fromYes || m.ReserveNo < fromNo {
		l.mu.Unlock()
		return fmt.Errorf("market: pay out %s exceeds reserves: %w", id, domain.ErrInsufficientBalance)
	}
	m.ReserveYes -= fromYes
	m.ReserveNo -= fromNo
	m.TotalPaidOut += fromYes + fromNo
	l.mu.Unlock()

	if err := l.token.Transfer(VaultAccount, to, fromYes+fromNo); err != nil {
		// Roll the accounting back: the recipient received nothing.
		l.mu.Lock()
		m.ReserveYes += fromYes
		m.ReserveNo += fromNo
		m.TotalPaidOut -= fromYes + fromNo
		l.mu.Unlock()
		return fmt.Errorf("market: pay out %s: %w", id, err)
	}
	return nil
}

// MintShares increases the per-side LP share supply.
func (l *Ledger) MintShares(id string, dYes, dNo int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markets[id]
	if !ok {
		return fmt.Errorf("market: mint shares %s: %w", id, domain.ErrUnknownMarket)
	}
	m.TotalSharesYes += dYes
	m.TotalSharesNo += dNo
	return nil
}

// BurnShares decreases the per-side LP share supply.
func (l *Ledger) BurnShares(id string, dYes, dNo int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markets[id]
	if !ok {
		return fmt.Errorf("market: burn shares %s: %w", id, domain.ErrUnknownMarket)
	}
	if m.TotalSharesYes < dYes || m.TotalSharesNo < dNo {
		return fmt.Errorf("market: burn shares %s: %w", id, domain.ErrInsufficientShares)
	}
	m.TotalSharesYes -= dYes
	m.TotalSharesNo -= dNo
	return nil
}

// Settle applies the one-shot outcome. Only the market's oracle may call it,
// and only once; reserves are frozen for trading from this point on.
func (l *Ledger) Settle(caller, id string, outcomeYes bool) (domain.Market, error) {
	release := l.Guard(id)
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market: settle %s: %w", id, domain.ErrUnknownMarket)
	}
	if caller != m.Oracle {
		return domain.Market{}, fmt.Errorf("market: settle %s by %s: %w", id, caller, domain.ErrNotOracle)
	}
	if m.Settled {
		return domain.Market{}, fmt.Errorf("market: settle %s: %w", id, domain.ErrAlreadySettled)
	}
	now := time.Now().UTC()
	m.Settled = true
	m.OutcomeYes = outcomeYes
	m.SettledAt = &now

	l.logger.Info("market settled",
		slog.String("market_id", id),
		slog.Bool("outcome_yes", outcomeYes),
	)
	return *m, nil
}

// Token exposes the collateral token the ledger settles against.
func (l *Ledger) Token() domain.CollateralToken {
	return l.token
}
