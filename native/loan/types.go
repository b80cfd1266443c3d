package loan

import "math/big"

// Status represents the lifecycle states of a lending agreement. StatusNone
// is never persisted: a deleted agreement simply has no record under either
// index.
type Status uint8

const (
	StatusNone Status = iota
	StatusActive
	StatusFilled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFilled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFilled:
		return "filled"
	default:
		return "none"
	}
}

// Agreement is the sole domain entity: one lender-borrower pairing and its
// terms. The identifier is the keccak256 hash of the lender address and a
// monotonic creation nonce, so each record has a stable identity independent
// of the secondary lookup indices.
type Agreement struct {
	ID [32]byte
	// Lender deposited the principal; set at offer time.
	Lender [20]byte
	// Borrower is zero until the agreement is matched.
	Borrower [20]byte
	// Principal is the quantity of the principal asset on offer.
	Principal *big.Int
	// Collateral is the escrowed collateral-asset quantity; zero until
	// matched.
	Collateral *big.Int
	// InterestRate is a fixed-point rate with four implied decimal digits
	// (5000 = 5%), applied per lock month.
	InterestRate uint64
	// LockMonths is the loan term in 30-day months.
	LockMonths uint64
	// BorrowedAt is the unix timestamp captured at match time; zero until
	// then.
	BorrowedAt int64
	Status     Status
}

// Clone returns a deep copy of the agreement so callers can safely mutate
// the copy without affecting the stored instance.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Principal != nil {
		clone.Principal = new(big.Int).Set(a.Principal)
	} else {
		clone.Principal = big.NewInt(0)
	}
	if a.Collateral != nil {
		clone.Collateral = new(big.Int).Set(a.Collateral)
	} else {
		clone.Collateral = big.NewInt(0)
	}
	return &clone
}
