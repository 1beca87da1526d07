package domain

// LiquidityPosition is one owner's LP share holding in one market. Shares on
// each side are independent claims on that side's reserve.
type LiquidityPosition struct {
	MarketID  string `json:"market_id"`
	Owner     string `json:"owner"`
	SharesYes int64  `json:"shares_yes"`
	SharesNo  int64  `json:"shares_no"`
}

// TraderPosition is one owner's outcome-token balance in one market, acquired
// through AMM trades or auction fills and redeemable 1:1 against the winning
// side after settlement.
type TraderPosition struct {
	MarketID    string `json:"market_id"`
	Owner       string `json:"owner"`
	PositionYes int64  `json:"position_yes"`
	PositionNo  int64  `json:"position_no"`
}
