package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lendledger/core/types"
)

// SymbolPrincipal and SymbolCollateral name the two fungible assets the
// ledger tracks. The loan protocol lends the former and escrows the latter.
const (
	SymbolPrincipal  = "LND"
	SymbolCollateral = "CLT"
)

var (
	ErrInvalidAmount         = errors.New("token: amount must not be negative")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")

	errNilState = errors.New("token: state not configured")
)

// State is the narrow persistence surface the token ledger requires.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	Allowance(symbol string, owner, spender [20]byte) (*big.Int, error)
	SetAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
	TokenSupply(symbol string) (*big.Int, error)
	SetTokenSupply(symbol string, amount *big.Int) error
}

// Ledger implements push- and pull-transfers for one fungible asset. Two
// instances back the protocol: one per supported symbol. All mutations are
// all-or-nothing; a failed precondition leaves every balance untouched.
type Ledger struct {
	state  State
	symbol string
}

// NewLedger constructs a ledger for the given symbol. The symbol must be one
// of the supported assets.
func NewLedger(state State, symbol string) (*Ledger, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return &Ledger{state: state, symbol: normalized}, nil
}

// Symbol returns the asset symbol this ledger operates on.
func (l *Ledger) Symbol() string {
	if l == nil {
		return ""
	}
	return l.symbol
}

// NormalizeSymbol validates a token symbol and returns its canonical
// uppercase form.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	switch trimmed {
	case SymbolPrincipal, SymbolCollateral:
		return trimmed, nil
	default:
		return "", fmt.Errorf("token: unsupported symbol %q", symbol)
	}
}

func (l *Ledger) balanceOf(acc *types.Account) *big.Int {
	if l.symbol == SymbolCollateral {
		return acc.BalanceCollateral
	}
	return acc.BalancePrincipal
}

func (l *Ledger) setBalance(acc *types.Account, amount *big.Int) {
	if l.symbol == SymbolCollateral {
		acc.BalanceCollateral = amount
		return
	}
	acc.BalancePrincipal = amount
}

// BalanceOf returns the holder's balance. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.balanceOf(acc.Normalize())), nil
}

// Transfer moves amount from one holder to another. A zero amount is a
// no-op so degenerate protocol parameters do not abort settlement.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	fromAcc, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	if l.balanceOf(fromAcc).Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	// A covered self-transfer leaves the balance unchanged. Loading the
	// account twice would apply the credit over the debit and mint funds.
	if from == to {
		return nil
	}
	toAcc, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc = toAcc.Normalize()
	l.setBalance(fromAcc, new(big.Int).Sub(l.balanceOf(fromAcc), amt))
	l.setBalance(toAcc, new(big.Int).Add(l.balanceOf(toAcc), amt))
	if err := l.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to, toAcc)
}

// Approve grants the spender permission to pull up to amount from the owner.
// Subsequent approvals replace the previous allowance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.state.SetAllowance(l.symbol, owner, spender, amt)
}

// Allowance reports how much the spender may still pull from the owner.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowed, err := l.state.Allowance(l.symbol, owner, spender)
	if err != nil {
		return nil, err
	}
	if allowed == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowed), nil
}

// TransferFrom pulls amount from the owner on behalf of the spender,
// consuming the matching allowance. Balance and allowance are checked before
// any mutation.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	allowed, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowed.Cmp(amt) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(from, to, amt); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(allowed, amt)
	return l.state.SetAllowance(l.symbol, from, spender, remaining)
}

// Mint credits newly issued units to the recipient and grows the recorded
// supply. Used at genesis and by the operator faucet only; the protocol
// itself never mints.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	acc = acc.Normalize()
	l.setBalance(acc, new(big.Int).Add(l.balanceOf(acc), amt))
	if err := l.state.PutAccount(to, acc); err != nil {
		return err
	}
	supply, err := l.state.TokenSupply(l.symbol)
	if err != nil {
		return err
	}
	if supply == nil {
		supply = big.NewInt(0)
	}
	return l.state.SetTokenSupply(l.symbol, new(big.Int).Add(supply, amt))
}

// TotalSupply returns the cumulative minted amount for the asset.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.TokenSupply(l.symbol)
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(supply), nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
