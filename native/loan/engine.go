package loan

import (
	"encoding/binary"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lendledger/core/events"
	"lendledger/core/types"
)

// engineState is the persistence surface the engine mutates: the agreement
// arena, the two secondary indices, and the protocol parameters. The arena
// is the single source of truth; the indices only map party addresses to
// arena identifiers.
type engineState interface {
	LoanGet(id [32]byte) (*Agreement, bool, error)
	LoanPut(agreement *Agreement) error
	LoanDelete(id [32]byte) error
	LoanLenderID(addr [20]byte) ([32]byte, bool, error)
	LoanBorrowerID(addr [20]byte) ([32]byte, bool, error)
	LoanIndexLender(addr [20]byte, id [32]byte) error
	LoanIndexBorrower(addr [20]byte, id [32]byte) error
	LoanUnindexLender(addr [20]byte) error
	LoanUnindexBorrower(addr [20]byte) error
	LoanParams() (Params, bool, error)
	LoanSetParams(params Params) error
	LoanNextNonce() (uint64, error)
}

// AssetLedger is the fungible-asset surface the engine consumes: balance
// query, allowance-gated pull, and push from custody. Movements are atomic
// and all-or-nothing; a failed movement leaves every balance untouched.
type AssetLedger interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

// Engine implements the lending-agreement state machine:
//
//	None --offer--> Active --match--> Filled --{repay|claim}--> None
//
// Every operation validates its preconditions, performs the asset movements
// in an order that bounds lender exposure, then transitions or deletes the
// agreement. The caller (core.Ledger) serializes operations, so no two
// invocations interleave their reads and writes.
type Engine struct {
	state         engineState
	moduleAddress [20]byte
	principal     AssetLedger
	collateral    AssetLedger
	emitter       events.Emitter
	nowFn         func() int64
}

// NewEngine constructs a lending engine bound to the module custody address.
func NewEngine(moduleAddr [20]byte) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the principal and collateral asset ledgers.
func (e *Engine) SetAssets(principal, collateral AssetLedger) {
	if e == nil {
		return
	}
	e.principal = principal
	e.collateral = collateral
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(loanEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.principal == nil || e.collateral == nil {
		return errNilAssets
	}
	return nil
}

// Offer escrows the lender's principal and opens an Active agreement at the
// default rate. Each lender may hold at most one open agreement.
func (e *Engine) Offer(lender [20]byte, principal *big.Int, lockMonths uint64) (*Agreement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if principal == nil || principal.Sign() <= 0 || lockMonths == 0 {
		return nil, ErrInvalidAmount
	}
	if _, bound, err := e.state.LoanLenderID(lender); err != nil {
		return nil, err
	} else if bound {
		return nil, ErrDuplicateAgreement
	}
	balance, err := e.principal.BalanceOf(lender)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(principal) < 0 {
		return nil, ErrInsufficientBalance
	}

	// Principal moves into custody before the agreement exists, so a
	// failed pull creates nothing.
	if err := e.principal.TransferFrom(e.moduleAddress, lender, e.moduleAddress, principal); err != nil {
		return nil, err
	}

	nonce, err := e.state.LoanNextNonce()
	if err != nil {
		return nil, err
	}
	agreement := &Agreement{
		ID:           agreementID(lender, nonce),
		Lender:       lender,
		Principal:    new(big.Int).Set(principal),
		Collateral:   big.NewInt(0),
		InterestRate: DefaultInterestRate,
		LockMonths:   lockMonths,
		Status:       StatusActive,
	}
	if err := e.state.LoanPut(agreement); err != nil {
		return nil, err
	}
	if err := e.state.LoanIndexLender(lender, agreement.ID); err != nil {
		return nil, err
	}
	e.emit(NewBalanceCheckedEvent(lender, balance))
	e.emit(NewOfferCreatedEvent(agreement))
	return agreement.Clone(), nil
}

// Match fills the target lender's Active agreement with the caller as
// borrower. Collateral is secured before principal leaves custody so a
// failed step never leaves the lender exposed.
func (e *Engine) Match(borrower, lender [20]byte) (*Agreement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, bound, err := e.state.LoanBorrowerID(borrower); err != nil {
		return nil, err
	} else if bound {
		return nil, ErrDuplicateAgreement
	}
	id, ok, err := e.state.LoanLenderID(lender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgreementNotFound
	}
	agreement, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgreementNotFound
	}
	if agreement.Status != StatusActive {
		return nil, ErrInvalidState
	}

	params, _, err := e.state.LoanParams()
	if err != nil {
		return nil, err
	}
	collateralAmount := CollateralAmount(agreement.Principal, params.ExchangeRate)
	balance, err := e.collateral.BalanceOf(borrower)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(collateralAmount) < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := e.collateral.TransferFrom(e.moduleAddress, borrower, e.moduleAddress, collateralAmount); err != nil {
		return nil, err
	}
	agreement.Collateral = collateralAmount
	agreement.Borrower = borrower
	agreement.BorrowedAt = e.now()
	agreement.Status = StatusFilled
	if err := e.state.LoanPut(agreement); err != nil {
		return nil, err
	}
	if err := e.principal.Transfer(e.moduleAddress, borrower, agreement.Principal); err != nil {
		return nil, err
	}
	if err := e.state.LoanIndexBorrower(borrower, agreement.ID); err != nil {
		return nil, err
	}
	e.emit(NewMatchedEvent(agreement))
	return agreement.Clone(), nil
}

// Repay settles the loan: the borrower pays principal plus the full term's
// interest to the lender, the escrowed collateral returns to the borrower,
// and the agreement is deleted from the arena and both indices.
func (e *Engine) Repay(borrower [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	agreement, err := e.loadByBorrower(borrower)
	if err != nil {
		return nil, err
	}
	if agreement.Status != StatusFilled {
		return nil, ErrInvalidState
	}
	totalDue := TotalDue(agreement.Principal, agreement.InterestRate, agreement.LockMonths)
	if totalDue.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	balance, err := e.principal.BalanceOf(borrower)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(totalDue) < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := e.principal.TransferFrom(e.moduleAddress, borrower, e.moduleAddress, totalDue); err != nil {
		return nil, err
	}
	if err := e.principal.Transfer(e.moduleAddress, agreement.Lender, totalDue); err != nil {
		return nil, err
	}
	if err := e.collateral.Transfer(e.moduleAddress, borrower, agreement.Collateral); err != nil {
		return nil, err
	}
	if err := e.deleteAgreement(agreement); err != nil {
		return nil, err
	}
	e.emit(NewRepaidEvent(agreement, totalDue))
	return totalDue, nil
}

// ClaimCollateral forfeits the borrower's escrowed collateral to the lender
// once the lock period has fully elapsed. The borrower is not refunded any
// difference: default-by-timeout is terminal.
func (e *Engine) ClaimCollateral(lender [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	id, ok, err := e.state.LoanLenderID(lender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgreementNotFound
	}
	agreement, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgreementNotFound
	}
	if agreement.Lender != lender {
		return nil, ErrUnauthorized
	}
	if agreement.Status != StatusFilled {
		return nil, ErrInvalidState
	}
	if agreement.Collateral == nil || agreement.Collateral.Sign() <= 0 {
		return nil, ErrInvalidState
	}
	if !LockExpired(e.now(), agreement.BorrowedAt, agreement.LockMonths) {
		return nil, ErrLockNotExpired
	}

	if err := e.collateral.Transfer(e.moduleAddress, lender, agreement.Collateral); err != nil {
		return nil, err
	}
	if err := e.deleteAgreement(agreement); err != nil {
		return nil, err
	}
	e.emit(NewCollateralClaimedEvent(agreement))
	return new(big.Int).Set(agreement.Collateral), nil
}

// SetExchangeRate replaces the global collateral exchange rate. Owner-only;
// the value itself is not validated (a zero rate is the operator's
// responsibility).
func (e *Engine) SetExchangeRate(caller [20]byte, rate uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	params, _, err := e.state.LoanParams()
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return ErrUnauthorized
	}
	previous := params.ExchangeRate
	params.ExchangeRate = rate
	if err := e.state.LoanSetParams(params); err != nil {
		return err
	}
	e.emit(NewRateUpdatedEvent(params.Owner, previous, rate))
	return nil
}

// Params returns the current protocol parameters.
func (e *Engine) Params() (Params, error) {
	if e == nil || e.state == nil {
		return Params{}, errNilState
	}
	params, _, err := e.state.LoanParams()
	return params, err
}

// AgreementByLender looks up the agreement indexed under the lender, if any.
func (e *Engine) AgreementByLender(lender [20]byte) (*Agreement, bool, error) {
	return e.lookup(lender, true)
}

// AgreementByBorrower looks up the agreement indexed under the borrower, if
// any.
func (e *Engine) AgreementByBorrower(borrower [20]byte) (*Agreement, bool, error) {
	return e.lookup(borrower, false)
}

func (e *Engine) lookup(addr [20]byte, lenderSide bool) (*Agreement, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	var (
		id  [32]byte
		ok  bool
		err error
	)
	if lenderSide {
		id, ok, err = e.state.LoanLenderID(addr)
	} else {
		id, ok, err = e.state.LoanBorrowerID(addr)
	}
	if err != nil || !ok {
		return nil, false, err
	}
	agreement, ok, err := e.state.LoanGet(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return agreement.Clone(), true, nil
}

func (e *Engine) loadByBorrower(borrower [20]byte) (*Agreement, error) {
	id, ok, err := e.state.LoanBorrowerID(borrower)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgreementNotFound
	}
	agreement, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgreementNotFound
	}
	if agreement.Borrower != borrower {
		return nil, ErrUnauthorized
	}
	return agreement, nil
}

func (e *Engine) deleteAgreement(agreement *Agreement) error {
	if err := e.state.LoanDelete(agreement.ID); err != nil {
		return err
	}
	if err := e.state.LoanUnindexLender(agreement.Lender); err != nil {
		return err
	}
	if agreement.Borrower != ([20]byte{}) {
		if err := e.state.LoanUnindexBorrower(agreement.Borrower); err != nil {
			return err
		}
	}
	return nil
}

func agreementID(lender [20]byte, nonce uint64) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(lender[:], buf[:]))
	return id
}
