package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/core/types"
	"lendledger/native/loan"
	"lendledger/storage"
)

// Manager persists ledger state in a key-value database. It implements the
// persistence surfaces consumed by the token ledger and the loan engine;
// callers serialize access, the manager itself holds no locks.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// storedAgreement is the RLP persistence shape of loan.Agreement. RLP has no
// signed integers, so the match timestamp is stored unsigned.
type storedAgreement struct {
	ID           [32]byte
	Lender       [20]byte
	Borrower     [20]byte
	Principal    *big.Int
	Collateral   *big.Int
	InterestRate uint64
	LockMonths   uint64
	BorrowedAt   uint64
	Status       uint8
}

type storedParams struct {
	ExchangeRate uint64
	Owner        [20]byte
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// --- token.State ---

// GetAccount loads an account record. Unknown addresses yield a zeroed
// account rather than an error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	data, ok, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).Normalize(), nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return account.Normalize(), nil
}

// PutAccount writes an account record.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	encoded, err := rlp.EncodeToBytes(account.Normalize())
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.db.Put(accountKey(addr), encoded)
}

// Allowance reports the spender's remaining pull allowance for the symbol.
func (m *Manager) Allowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	data, ok, err := m.get(allowanceKey(symbol, owner, spender))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(data), nil
}

// SetAllowance records the spender's pull allowance for the symbol.
func (m *Manager) SetAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return m.db.Delete(allowanceKey(symbol, owner, spender))
	}
	return m.db.Put(allowanceKey(symbol, owner, spender), amount.Bytes())
}

// TokenSupply returns the cumulative minted amount for the symbol.
func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	data, ok, err := m.get(supplyKey(symbol))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(data), nil
}

// SetTokenSupply records the cumulative minted amount for the symbol.
func (m *Manager) SetTokenSupply(symbol string, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.db.Put(supplyKey(symbol), amount.Bytes())
}

// --- loan engine state ---

// LoanGet loads an agreement from the arena by identifier.
func (m *Manager) LoanGet(id [32]byte) (*loan.Agreement, bool, error) {
	data, ok, err := m.get(agreementKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	stored := new(storedAgreement)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode agreement: %w", err)
	}
	agreement := &loan.Agreement{
		ID:           stored.ID,
		Lender:       stored.Lender,
		Borrower:     stored.Borrower,
		Principal:    stored.Principal,
		Collateral:   stored.Collateral,
		InterestRate: stored.InterestRate,
		LockMonths:   stored.LockMonths,
		BorrowedAt:   int64(stored.BorrowedAt),
		Status:       loan.Status(stored.Status),
	}
	return agreement, true, nil
}

// LoanPut writes an agreement into the arena.
func (m *Manager) LoanPut(agreement *loan.Agreement) error {
	if agreement == nil {
		return fmt.Errorf("state: nil agreement")
	}
	if agreement.BorrowedAt < 0 {
		return fmt.Errorf("state: negative agreement timestamp")
	}
	stored := &storedAgreement{
		ID:           agreement.ID,
		Lender:       agreement.Lender,
		Borrower:     agreement.Borrower,
		Principal:    agreement.Principal,
		Collateral:   agreement.Collateral,
		InterestRate: agreement.InterestRate,
		LockMonths:   agreement.LockMonths,
		BorrowedAt:   uint64(agreement.BorrowedAt),
		Status:       uint8(agreement.Status),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return fmt.Errorf("state: encode agreement: %w", err)
	}
	return m.db.Put(agreementKey(agreement.ID), encoded)
}

// LoanDelete removes an agreement from the arena.
func (m *Manager) LoanDelete(id [32]byte) error {
	return m.db.Delete(agreementKey(id))
}

func (m *Manager) loanIndexID(key []byte) ([32]byte, bool, error) {
	var id [32]byte
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return id, false, err
	}
	if len(data) != len(id) {
		return id, false, fmt.Errorf("state: malformed agreement index entry")
	}
	copy(id[:], data)
	return id, true, nil
}

// LoanLenderID resolves a lender address to its open agreement identifier.
func (m *Manager) LoanLenderID(addr [20]byte) ([32]byte, bool, error) {
	return m.loanIndexID(lenderKey(addr))
}

// LoanBorrowerID resolves a borrower address to its filled agreement
// identifier.
func (m *Manager) LoanBorrowerID(addr [20]byte) ([32]byte, bool, error) {
	return m.loanIndexID(borrowerKey(addr))
}

// LoanIndexLender binds a lender address to an agreement identifier.
func (m *Manager) LoanIndexLender(addr [20]byte, id [32]byte) error {
	return m.db.Put(lenderKey(addr), id[:])
}

// LoanIndexBorrower binds a borrower address to an agreement identifier.
func (m *Manager) LoanIndexBorrower(addr [20]byte, id [32]byte) error {
	return m.db.Put(borrowerKey(addr), id[:])
}

// LoanUnindexLender removes a lender index entry.
func (m *Manager) LoanUnindexLender(addr [20]byte) error {
	return m.db.Delete(lenderKey(addr))
}

// LoanUnindexBorrower removes a borrower index entry.
func (m *Manager) LoanUnindexBorrower(addr [20]byte) error {
	return m.db.Delete(borrowerKey(addr))
}

// LoanParams loads the protocol parameters. The boolean reports whether the
// parameters were ever initialised.
func (m *Manager) LoanParams() (loan.Params, bool, error) {
	data, ok, err := m.get(loanParamsKey)
	if err != nil || !ok {
		return loan.Params{}, false, err
	}
	stored := new(storedParams)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return loan.Params{}, false, fmt.Errorf("state: decode params: %w", err)
	}
	return loan.Params{ExchangeRate: stored.ExchangeRate, Owner: stored.Owner}, true, nil
}

// LoanSetParams writes the protocol parameters.
func (m *Manager) LoanSetParams(params loan.Params) error {
	encoded, err := rlp.EncodeToBytes(&storedParams{
		ExchangeRate: params.ExchangeRate,
		Owner:        params.Owner,
	})
	if err != nil {
		return fmt.Errorf("state: encode params: %w", err)
	}
	return m.db.Put(loanParamsKey, encoded)
}

// LoanNextNonce increments and returns the agreement nonce used to derive
// unique identifiers.
func (m *Manager) LoanNextNonce() (uint64, error) {
	data, ok, err := m.get(loanNonceKey)
	if err != nil {
		return 0, err
	}
	next := uint64(1)
	if ok {
		next = new(big.Int).SetBytes(data).Uint64() + 1
	}
	if err := m.db.Put(loanNonceKey, new(big.Int).SetUint64(next).Bytes()); err != nil {
		return 0, err
	}
	return next, nil
}
