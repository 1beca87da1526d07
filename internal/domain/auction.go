package domain

import "time"

// AuctionState is the lifecycle state of a sealed commit-reveal auction.
type AuctionState string

const (
	AuctionStateCommit    AuctionState = "commit"
	AuctionStateReveal    AuctionState = "reveal"
	AuctionStateFinalized AuctionState = "finalized"
	AuctionStateExpired   AuctionState = "expired"
)

// AuctionCommitment is one bidder's sealed bid: the keccak256 digest of
// (price, side, salt, amount) plus the collateral escrowed alongside it.
type AuctionCommitment struct {
	Bidder      string
	Hash        [32]byte
	Escrow      int64
	Revealed    bool
	Price       int64 // set on reveal
	BuyYes      bool  // set on reveal
	Amount      int64 // set on reveal, == Escrow
	CommittedAt time.Time
}

// AuctionFill is the outcome of finalization for one bidder.
type AuctionFill struct {
	Bidder string `json:"bidder"`
	BuyYes bool   `json:"buy_yes"`
	Filled int64  `json:"filled"`
	Refund int64  `json:"refund"`
	Units  int64  `json:"units"`
}

// AuctionResult summarises a finalized auction.
type AuctionResult struct {
	MarketID      string        `json:"market_id"`
	ClearingPrice int64         `json:"clearing_price"`
	SeededYes     int64         `json:"seeded_yes"`
	SeededNo      int64         `json:"seeded_no"`
	Fills         []AuctionFill `json:"fills"`
}
