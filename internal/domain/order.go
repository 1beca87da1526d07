package domain

import "time"

// Order is a resting or filled limit order. Size and Filled are collateral
// amounts; Price is the probability-implied price in integer cents (1-99) of
// the side being bought.
type Order struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Owner     string    `json:"owner"`
	BuyYes    bool      `json:"buy_yes"`
	Price     int64     `json:"price"`
	Size      int64     `json:"size"`
	Filled    int64     `json:"filled"`
	Cancelled bool      `json:"cancelled"`
	Claimed   bool      `json:"claimed"`
	CreatedAt time.Time `json:"created_at"`
}

// Remaining returns the unmatched collateral still resting on the book.
func (o Order) Remaining() int64 {
	return o.Size - o.Filled
}

// Terminal reports whether the order can never trade again.
func (o Order) Terminal() bool {
	return o.Cancelled || o.Filled >= o.Size
}

// Units returns the outcome-token units represented by the matched part of
// the order: each filled unit of collateral at price p buys 100/p units.
func (o Order) Units() int64 {
	if o.Price == 0 {
		return 0
	}
	return o.Filled * 100 / o.Price
}

// BookLevel is an aggregated price level of one side of a market's book.
type BookLevel struct {
	Price int64 `json:"price"`
	Size  int64 `json:"size"`
}
