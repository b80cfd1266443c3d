package modules

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"lendledger/core"
	"lendledger/native/token"
)

// BalanceResult is the JSON shape of a token balance query.
type BalanceResult struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

// AllowanceResult is the JSON shape of an allowance query.
type AllowanceResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Symbol    string `json:"symbol"`
	Remaining string `json:"remaining"`
}

// SupplyResult is the JSON shape of a total supply query.
type SupplyResult struct {
	Symbol string `json:"symbol"`
	Supply string `json:"supply"`
}

// TokenModule bridges RPC handlers and the token side of the ledger.
type TokenModule struct {
	ledger *core.Ledger
	format func([20]byte) string
}

// NewTokenModule wires the token RPC module.
func NewTokenModule(ledger *core.Ledger, format func([20]byte) string) *TokenModule {
	if format == nil {
		format = func([20]byte) string { return "" }
	}
	return &TokenModule{ledger: ledger, format: format}
}

func (m *TokenModule) moduleUnavailable() *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "token module not available"}
}

// BalanceOf returns the holder's balance of the symbol.
func (m *TokenModule) BalanceOf(symbol string, addr [20]byte) (*BalanceResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	balance, err := m.ledger.BalanceOf(symbol, addr)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return &BalanceResult{
		Address: m.format(addr),
		Symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		Balance: balance.String(),
	}, nil
}

// Transfer moves symbol units between two holders.
func (m *TokenModule) Transfer(symbol string, from, to [20]byte, amount *big.Int) *ModuleError {
	if m == nil || m.ledger == nil {
		return m.moduleUnavailable()
	}
	if err := m.ledger.Transfer(symbol, from, to, amount); err != nil {
		return m.wrapError(err)
	}
	return nil
}

// Approve grants the spender a pull allowance on the owner's balance.
func (m *TokenModule) Approve(symbol string, owner, spender [20]byte, amount *big.Int) *ModuleError {
	if m == nil || m.ledger == nil {
		return m.moduleUnavailable()
	}
	if err := m.ledger.Approve(symbol, owner, spender, amount); err != nil {
		return m.wrapError(err)
	}
	return nil
}

// Allowance reports the spender's remaining pull allowance.
func (m *TokenModule) Allowance(symbol string, owner, spender [20]byte) (*AllowanceResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	remaining, err := m.ledger.Allowance(symbol, owner, spender)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return &AllowanceResult{
		Owner:     m.format(owner),
		Spender:   m.format(spender),
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		Remaining: remaining.String(),
	}, nil
}

// Mint issues new symbol units to the recipient. Operator use only.
func (m *TokenModule) Mint(symbol string, to [20]byte, amount *big.Int) *ModuleError {
	if m == nil || m.ledger == nil {
		return m.moduleUnavailable()
	}
	if err := m.ledger.Mint(symbol, to, amount); err != nil {
		return m.wrapError(err)
	}
	return nil
}

// TotalSupply returns the cumulative minted amount for the symbol.
func (m *TokenModule) TotalSupply(symbol string) (*SupplyResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	supply, err := m.ledger.TotalSupply(symbol)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return &SupplyResult{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Supply: supply.String(),
	}, nil
}

func (m *TokenModule) wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	code := codeServerError
	switch {
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		strings.Contains(err.Error(), "unsupported symbol"):
		status = http.StatusBadRequest
		code = codeInvalidParams
	}
	return &ModuleError{HTTPStatus: status, Code: code, Message: err.Error()}
}
