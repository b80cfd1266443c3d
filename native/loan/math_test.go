package loan

import (
	"math/big"
	"testing"
)

func TestCollateralAmount(t *testing.T) {
	cases := []struct {
		name      string
		principal int64
		rate      uint64
		want      int64
	}{
		{"reference", 20, 5000, 200},
		{"truncates", 7, 1500, 21},
		{"zero rate", 20, 0, 0},
		{"sub-unit rate", 1, 499, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CollateralAmount(big.NewInt(tc.principal), tc.rate)
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("CollateralAmount(%d, %d) = %s, want %d", tc.principal, tc.rate, got, tc.want)
			}
		})
	}
}

func TestInterestDividesBeforeScaling(t *testing.T) {
	// 30 x 5000 / 100000 truncates to 1 per month. Scaling after the
	// division yields 6 over six months, not the 9 a multiply-first
	// order would produce.
	got := Interest(big.NewInt(30), 5000, 6)
	if got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("Interest(30, 5000, 6) = %s, want 6", got)
	}
	if got := Interest(big.NewInt(19), 5000, 12); got.Sign() != 0 {
		t.Fatalf("sub-unit monthly interest must truncate to zero, got %s", got)
	}
}

func TestTotalDue(t *testing.T) {
	got := TotalDue(big.NewInt(20), 5000, 6)
	if got.Cmp(big.NewInt(26)) != 0 {
		t.Fatalf("TotalDue(20, 5000, 6) = %s, want 26", got)
	}
}

func TestLockExpired(t *testing.T) {
	borrowedAt := int64(1_000)
	expiry := borrowedAt + 6*SecondsPerMonth
	if LockExpired(expiry-1, borrowedAt, 6) {
		t.Fatalf("lock must hold one second before expiry")
	}
	if !LockExpired(expiry, borrowedAt, 6) {
		t.Fatalf("lock must release exactly at expiry")
	}
	if !LockExpired(expiry+SecondsPerMonth, borrowedAt, 6) {
		t.Fatalf("lock must stay released after expiry")
	}
	if LockExpired(borrowedAt-1, borrowedAt, 6) {
		t.Fatalf("clock behind the match time must not release the lock")
	}
}
