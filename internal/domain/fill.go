package domain

import "time"

// Fill records one match between a YES order and a NO order. Amount is the
// collateral matched, identical on both sides of the match.
type Fill struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	YesOrderID string    `json:"yes_order_id"`
	NoOrderID  string    `json:"no_order_id"`
	YesPrice   int64     `json:"yes_price"`
	NoPrice    int64     `json:"no_price"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}
