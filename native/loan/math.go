package loan

import "math/big"

const (
	// DefaultInterestRate is the fixed protocol rate: 5%, encoded with four
	// implied decimal digits. There is deliberately no runtime setter.
	DefaultInterestRate uint64 = 5000

	// SecondsPerMonth fixes a lock month at thirty days.
	SecondsPerMonth int64 = 30 * 24 * 3600

	// interestRateDivisor scales InterestRate back to a fraction.
	interestRateDivisor = 100_000
	// exchangeRateDivisor scales the exchange rate (three implied decimals)
	// back to a fraction.
	exchangeRateDivisor = 1000
	// collateralFactor over-collateralizes every loan at twice the
	// principal value.
	collateralFactor = 2
)

// CollateralAmount computes the collateral-asset quantity a borrower must
// escrow to match an offer: principal x 2 x rate / 1000, with the division
// truncating toward zero. The truncation is part of the wire-compatible
// arithmetic and must not be "fixed" with rounding.
func CollateralAmount(principal *big.Int, exchangeRate uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(principal, big.NewInt(collateralFactor))
	amount.Mul(amount, new(big.Int).SetUint64(exchangeRate))
	return amount.Quo(amount, big.NewInt(exchangeRateDivisor))
}

// Interest computes the full-term interest owed at repayment. The division
// happens before the multiplication by the lock period; this two-step
// truncation order matches the settled arithmetic exactly and changes the
// result for small principals.
func Interest(principal *big.Int, interestRate, lockMonths uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	monthly := new(big.Int).Mul(principal, new(big.Int).SetUint64(interestRate))
	monthly.Quo(monthly, big.NewInt(interestRateDivisor))
	return monthly.Mul(monthly, new(big.Int).SetUint64(lockMonths))
}

// TotalDue is the principal plus full-term interest. Early repayment owes
// the same total.
func TotalDue(principal *big.Int, interestRate, lockMonths uint64) *big.Int {
	if principal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(principal, Interest(principal, interestRate, lockMonths))
}

// LockExpired reports whether the lock period has fully elapsed, using
// integer floor division over whole months. The boundary is inclusive: the
// claim succeeds at exactly lockMonths x SecondsPerMonth elapsed seconds.
func LockExpired(now, borrowedAt int64, lockMonths uint64) bool {
	if now < borrowedAt {
		return false
	}
	elapsedMonths := (now - borrowedAt) / SecondsPerMonth
	return elapsedMonths >= 0 && uint64(elapsedMonths) >= lockMonths
}
