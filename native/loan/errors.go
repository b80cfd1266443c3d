package loan

import "errors"

var (
	// ErrInvalidAmount rejects non-positive principal, lock period, or
	// repayment totals.
	ErrInvalidAmount = errors.New("loan engine: amount must be positive")
	// ErrDuplicateAgreement enforces the one-position-per-role rule: a
	// lender with an open offer cannot offer again, and a matched borrower
	// cannot match again.
	ErrDuplicateAgreement = errors.New("loan engine: party already bound to an agreement")
	// ErrAgreementNotFound signals that neither index references a record
	// for the requested party.
	ErrAgreementNotFound = errors.New("loan engine: agreement not found")
	// ErrInvalidState rejects an operation invoked outside its required
	// source status.
	ErrInvalidState = errors.New("loan engine: agreement not in required status")
	// ErrUnauthorized rejects callers that are not the recorded party or,
	// for rate updates, not the configured owner.
	ErrUnauthorized = errors.New("loan engine: caller not authorized")
	// ErrInsufficientBalance is returned when a party cannot cover the
	// required asset movement.
	ErrInsufficientBalance = errors.New("loan engine: insufficient balance")
	// ErrLockNotExpired blocks collateral claims before the lock period
	// has fully elapsed.
	ErrLockNotExpired = errors.New("loan engine: lock period not elapsed")

	errNilState  = errors.New("loan engine: state not configured")
	errNilAssets = errors.New("loan engine: asset ledgers not configured")
)
