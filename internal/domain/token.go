package domain

// CollateralToken is the fungible-balance interface every escrow and payout
// in the core runs through. A failed transfer aborts the whole operation that
// requested it.
type CollateralToken interface {
	// BalanceOf returns the free balance of an account.
	BalanceOf(account string) int64

	// Transfer moves amount from one account to another.
	Transfer(from, to string, amount int64) error

	// TransferFrom moves amount out of owner using the allowance owner has
	// granted to the core's operator account.
	TransferFrom(owner, to string, amount int64) error

	// Approve grants spender the right to move up to amount out of owner.
	Approve(owner, spender string, amount int64)

	// Allowance returns the remaining approved amount.
	Allowance(owner, spender string) int64
}
