package loan

import (
	"errors"
	"math/big"
	"testing"

	"lendledger/core/events"
	"lendledger/core/types"
)

type mockEngineState struct {
	agreements  map[[32]byte]*Agreement
	lenderIdx   map[[20]byte][32]byte
	borrowerIdx map[[20]byte][32]byte
	params      Params
	nonce       uint64
}

func newMockEngineState(params Params) *mockEngineState {
	return &mockEngineState{
		agreements:  make(map[[32]byte]*Agreement),
		lenderIdx:   make(map[[20]byte][32]byte),
		borrowerIdx: make(map[[20]byte][32]byte),
		params:      params,
	}
}

func (m *mockEngineState) LoanGet(id [32]byte) (*Agreement, bool, error) {
	a, ok := m.agreements[id]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockEngineState) LoanPut(a *Agreement) error {
	m.agreements[a.ID] = a.Clone()
	return nil
}

func (m *mockEngineState) LoanDelete(id [32]byte) error {
	delete(m.agreements, id)
	return nil
}

func (m *mockEngineState) LoanLenderID(addr [20]byte) ([32]byte, bool, error) {
	id, ok := m.lenderIdx[addr]
	return id, ok, nil
}

func (m *mockEngineState) LoanBorrowerID(addr [20]byte) ([32]byte, bool, error) {
	id, ok := m.borrowerIdx[addr]
	return id, ok, nil
}

func (m *mockEngineState) LoanIndexLender(addr [20]byte, id [32]byte) error {
	m.lenderIdx[addr] = id
	return nil
}

func (m *mockEngineState) LoanIndexBorrower(addr [20]byte, id [32]byte) error {
	m.borrowerIdx[addr] = id
	return nil
}

func (m *mockEngineState) LoanUnindexLender(addr [20]byte) error {
	delete(m.lenderIdx, addr)
	return nil
}

func (m *mockEngineState) LoanUnindexBorrower(addr [20]byte) error {
	delete(m.borrowerIdx, addr)
	return nil
}

func (m *mockEngineState) LoanParams() (Params, bool, error) {
	return m.params, true, nil
}

func (m *mockEngineState) LoanSetParams(p Params) error {
	m.params = p
	return nil
}

func (m *mockEngineState) LoanNextNonce() (uint64, error) {
	m.nonce++
	return m.nonce, nil
}

type mockAsset struct {
	balances map[[20]byte]*big.Int
}

func newMockAsset() *mockAsset {
	return &mockAsset{balances: make(map[[20]byte]*big.Int)}
}

func (m *mockAsset) credit(addr [20]byte, amount int64) {
	m.balances[addr] = big.NewInt(amount)
}

func (m *mockAsset) balance(addr [20]byte) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockAsset) BalanceOf(addr [20]byte) (*big.Int, error) {
	return new(big.Int).Set(m.balance(addr)), nil
}

func (m *mockAsset) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if m.balance(from).Cmp(amount) < 0 {
		return errors.New("mock asset: insufficient balance")
	}
	m.balances[from] = new(big.Int).Sub(m.balance(from), amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

func (m *mockAsset) TransferFrom(_, from, to [20]byte, amount *big.Int) error {
	return m.Transfer(from, to, amount)
}

type captureEmitter struct {
	emitted []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		c.emitted = append(c.emitted, carrier.Event())
	}
}

func (c *captureEmitter) typesEmitted() []string {
	out := make([]string, 0, len(c.emitted))
	for _, evt := range c.emitted {
		out = append(out, evt.Type)
	}
	return out
}

func makeAddr(suffix byte) [20]byte {
	var addr [20]byte
	addr[len(addr)-1] = suffix
	return addr
}

type fixture struct {
	engine     *Engine
	state      *mockEngineState
	principal  *mockAsset
	collateral *mockAsset
	emitter    *captureEmitter
	module     [20]byte
	now        int64
}

func newFixture(t *testing.T, rate uint64) *fixture {
	t.Helper()
	module := makeAddr(0xFF)
	owner := makeAddr(0xEE)
	f := &fixture{
		state:      newMockEngineState(Params{ExchangeRate: rate, Owner: owner}),
		principal:  newMockAsset(),
		collateral: newMockAsset(),
		emitter:    &captureEmitter{},
		module:     module,
		now:        1_700_000_000,
	}
	f.engine = NewEngine(module)
	f.engine.SetState(f.state)
	f.engine.SetAssets(f.principal, f.collateral)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return f.now })
	return f
}

func TestOfferCreatesActiveAgreement(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	f.principal.credit(lender, 100)

	agreement, err := f.engine.Offer(lender, big.NewInt(20), 6)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if agreement.Status != StatusActive {
		t.Fatalf("expected active status, got %v", agreement.Status)
	}
	if agreement.InterestRate != DefaultInterestRate {
		t.Fatalf("expected default rate %d, got %d", DefaultInterestRate, agreement.InterestRate)
	}
	if agreement.Borrower != ([20]byte{}) {
		t.Fatalf("expected no borrower on a fresh offer")
	}
	if agreement.Collateral.Sign() != 0 || agreement.BorrowedAt != 0 {
		t.Fatalf("expected zero collateral and timestamp before match")
	}
	if got := f.principal.balance(f.module); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected custody to hold 20, got %s", got)
	}
	if got := f.principal.balance(lender); got.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("expected lender to keep 80, got %s", got)
	}
	if _, ok := f.state.lenderIdx[lender]; !ok {
		t.Fatalf("expected lender index entry")
	}
	emitted := f.emitter.typesEmitted()
	if len(emitted) != 2 || emitted[0] != EventTypeBalanceChecked || emitted[1] != EventTypeOfferCreated {
		t.Fatalf("unexpected events: %v", emitted)
	}
}

func TestOfferRejectsInvalidInputs(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	f.principal.credit(lender, 100)

	if _, err := f.engine.Offer(lender, big.NewInt(0), 6); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero principal: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.engine.Offer(lender, big.NewInt(20), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero lock: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.engine.Offer(lender, big.NewInt(200), 6); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := f.principal.balance(lender); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed offers must not move funds, lender holds %s", got)
	}
}

func TestOfferDuplicateLender(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	f.principal.credit(lender, 100)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("first offer: %v", err)
	}
	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); !errors.Is(err, ErrDuplicateAgreement) {
		t.Fatalf("expected ErrDuplicateAgreement, got %v", err)
	}
}

func TestMatchFillsAgreement(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrower, 500)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	agreement, err := f.engine.Match(borrower, lender)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	// collateral = 20 x 2 x 5000 / 1000 = 200
	if agreement.Collateral.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected collateral 200, got %s", agreement.Collateral)
	}
	if agreement.Status != StatusFilled {
		t.Fatalf("expected filled status, got %v", agreement.Status)
	}
	if agreement.BorrowedAt != f.now {
		t.Fatalf("expected borrowedAt %d, got %d", f.now, agreement.BorrowedAt)
	}
	if got := f.collateral.balance(f.module); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected custody collateral 200, got %s", got)
	}
	if got := f.collateral.balance(borrower); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected borrower collateral 300, got %s", got)
	}
	if got := f.principal.balance(borrower); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected borrower principal 20, got %s", got)
	}
	if got := f.principal.balance(f.module); got.Sign() != 0 {
		t.Fatalf("expected empty principal custody, got %s", got)
	}
	if _, ok := f.state.borrowerIdx[borrower]; !ok {
		t.Fatalf("expected borrower index entry")
	}
}

func TestMatchRejectsBoundBorrower(t *testing.T) {
	f := newFixture(t, 5000)
	lenderA := makeAddr(0x01)
	lenderB := makeAddr(0x03)
	borrower := makeAddr(0x02)
	f.principal.credit(lenderA, 100)
	f.principal.credit(lenderB, 100)
	f.collateral.credit(borrower, 1000)

	if _, err := f.engine.Offer(lenderA, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer A: %v", err)
	}
	if _, err := f.engine.Offer(lenderB, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer B: %v", err)
	}
	if _, err := f.engine.Match(borrower, lenderA); err != nil {
		t.Fatalf("first match: %v", err)
	}
	if _, err := f.engine.Match(borrower, lenderB); !errors.Is(err, ErrDuplicateAgreement) {
		t.Fatalf("expected ErrDuplicateAgreement, got %v", err)
	}
}

func TestMatchStateErrors(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrowerA := makeAddr(0x02)
	borrowerB := makeAddr(0x04)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrowerA, 500)
	f.collateral.credit(borrowerB, 500)

	if _, err := f.engine.Match(borrowerA, lender); !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound, got %v", err)
	}
	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.engine.Match(borrowerA, lender); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := f.engine.Match(borrowerB, lender); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for filled agreement, got %v", err)
	}
}

func TestMatchInsufficientCollateral(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrower, 199)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.engine.Match(borrower, lender); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := f.collateral.balance(borrower); got.Cmp(big.NewInt(199)) != 0 {
		t.Fatalf("failed match must not move collateral, borrower holds %s", got)
	}
}

func TestRepaySettlesAndDeletes(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrower, 500)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.engine.Match(borrower, lender); err != nil {
		t.Fatalf("match: %v", err)
	}
	// Borrower needs 26 = 20 principal + (20 x 5000 / 100000) x 6 interest.
	f.principal.credit(borrower, 26)

	totalDue, err := f.engine.Repay(borrower)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if totalDue.Cmp(big.NewInt(26)) != 0 {
		t.Fatalf("expected total due 26, got %s", totalDue)
	}
	if got := f.principal.balance(lender); got.Cmp(big.NewInt(106)) != 0 {
		t.Fatalf("expected lender principal 106, got %s", got)
	}
	if got := f.collateral.balance(borrower); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected collateral returned in full, borrower holds %s", got)
	}
	if got := f.collateral.balance(f.module); got.Sign() != 0 {
		t.Fatalf("expected empty collateral custody, got %s", got)
	}
	if len(f.state.agreements) != 0 || len(f.state.lenderIdx) != 0 || len(f.state.borrowerIdx) != 0 {
		t.Fatalf("expected agreement fully deleted")
	}
	if _, err := f.engine.Repay(borrower); !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound after settlement, got %v", err)
	}
	if _, err := f.engine.ClaimCollateral(lender); !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound after settlement, got %v", err)
	}
}

func TestRepayRequiresFunds(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrower, 500)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.engine.Match(borrower, lender); err != nil {
		t.Fatalf("match: %v", err)
	}
	// Borrower holds only the 20 borrowed, owes 26.
	if _, err := f.engine.Repay(borrower); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := f.collateral.balance(f.module); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("failed repay must keep collateral in custody, got %s", got)
	}
}

func TestClaimCollateralBoundary(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrower, 500)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	matched, err := f.engine.Match(borrower, lender)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	expiry := matched.BorrowedAt + 6*SecondsPerMonth

	f.now = expiry - 1
	if _, err := f.engine.ClaimCollateral(lender); !errors.Is(err, ErrLockNotExpired) {
		t.Fatalf("expected ErrLockNotExpired one second early, got %v", err)
	}

	f.now = expiry
	claimed, err := f.engine.ClaimCollateral(lender)
	if err != nil {
		t.Fatalf("claim at boundary: %v", err)
	}
	if claimed.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected claimed collateral 200, got %s", claimed)
	}
	if got := f.collateral.balance(lender); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected lender to hold forfeited collateral, got %s", got)
	}
	if len(f.state.agreements) != 0 || len(f.state.lenderIdx) != 0 || len(f.state.borrowerIdx) != 0 {
		t.Fatalf("expected agreement fully deleted after claim")
	}
}

func TestClaimRequiresFilledStatus(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	f.principal.credit(lender, 100)

	if _, err := f.engine.ClaimCollateral(lender); !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound, got %v", err)
	}
	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.engine.ClaimCollateral(lender); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on active agreement, got %v", err)
	}
}

func TestSetExchangeRateOwnerGated(t *testing.T) {
	f := newFixture(t, 5000)
	owner := makeAddr(0xEE)
	stranger := makeAddr(0x09)

	if err := f.engine.SetExchangeRate(stranger, 7000); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SetExchangeRate(owner, 7000); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	params, err := f.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.ExchangeRate != 7000 {
		t.Fatalf("expected rate 7000, got %d", params.ExchangeRate)
	}
	// Zero is accepted unvalidated; matching then escrows zero collateral.
	if err := f.engine.SetExchangeRate(owner, 0); err != nil {
		t.Fatalf("zero rate update: %v", err)
	}
}

func TestZeroRateMakesClaimImpossible(t *testing.T) {
	f := newFixture(t, 0)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	matched, err := f.engine.Match(borrower, lender)
	if err != nil {
		t.Fatalf("match with zero rate: %v", err)
	}
	if matched.Collateral.Sign() != 0 {
		t.Fatalf("expected zero collateral, got %s", matched.Collateral)
	}
	f.now = matched.BorrowedAt + 6*SecondsPerMonth
	if _, err := f.engine.ClaimCollateral(lender); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for zero collateral, got %v", err)
	}
}

func TestLookupReturnsSameLogicalRecord(t *testing.T) {
	f := newFixture(t, 5000)
	lender := makeAddr(0x01)
	borrower := makeAddr(0x02)
	f.principal.credit(lender, 100)
	f.collateral.credit(borrower, 500)

	if _, err := f.engine.Offer(lender, big.NewInt(20), 6); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := f.engine.Match(borrower, lender); err != nil {
		t.Fatalf("match: %v", err)
	}
	byLender, ok, err := f.engine.AgreementByLender(lender)
	if err != nil || !ok {
		t.Fatalf("lookup by lender: ok=%v err=%v", ok, err)
	}
	byBorrower, ok, err := f.engine.AgreementByBorrower(borrower)
	if err != nil || !ok {
		t.Fatalf("lookup by borrower: ok=%v err=%v", ok, err)
	}
	if byLender.ID != byBorrower.ID {
		t.Fatalf("indices must reference the same agreement")
	}
}
