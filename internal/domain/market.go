package domain

import "time"

// Market is the authoritative ledger record for one binary-outcome market.
// ReserveYes + ReserveNo is the market's total value locked and must always
// equal TotalDeposited - TotalPaidOut.
type Market struct {
	ID       string
	Question string
	Creator  string
	Oracle   string

	ReserveYes int64
	ReserveNo  int64

	TotalSharesYes int64
	TotalSharesNo  int64

	// Running conservation counters: every unit of collateral that enters or
	// leaves the market passes through exactly one of these.
	TotalDeposited int64
	TotalPaidOut   int64

	Expiry     time.Time
	Settled    bool
	OutcomeYes bool // meaningful only once Settled

	CreatedAt time.Time
	SettledAt *time.Time
}

// TVL returns the market's total value locked.
func (m Market) TVL() int64 {
	return m.ReserveYes + m.ReserveNo
}

// PriceYes returns the YES side's implied price in integer cents. The implied
// price of a side is its reserve's share of TVL; an empty market quotes 50/50.
func (m Market) PriceYes() int64 {
	tvl := m.TVL()
	if tvl == 0 {
		return 50
	}
	return 100 * m.ReserveYes / tvl
}

// PriceNo returns the NO side's implied price in integer cents.
func (m Market) PriceNo() int64 {
	tvl := m.TVL()
	if tvl == 0 {
		return 50
	}
	return 100 * m.ReserveNo / tvl
}

// MarketInfo is the read model served to the registry and UI.
type MarketInfo struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	ReserveYes int64     `json:"reserve_yes"`
	ReserveNo  int64     `json:"reserve_no"`
	PriceYes   int64     `json:"price_yes"`
	PriceNo    int64     `json:"price_no"`
	Expiry     time.Time `json:"expiry"`
	Settled    bool      `json:"settled"`
	OutcomeYes bool      `json:"outcome_yes"`
}

// Info projects a Market into its read model.
func (m Market) Info() MarketInfo {
	return MarketInfo{
		ID:         m.ID,
		Question:   m.Question,
		ReserveYes: m.ReserveYes,
		ReserveNo:  m.ReserveNo,
		PriceYes:   m.PriceYes(),
		PriceNo:    m.PriceNo(),
		Expiry:     m.Expiry,
		Settled:    m.Settled,
		OutcomeYes: m.OutcomeYes,
	}
}
