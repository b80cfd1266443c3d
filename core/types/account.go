package types

import "math/big"

// Account holds the fungible balances tracked for a single participant. Both
// balances are denominated in base units and expressed as big integers so the
// arithmetic matches the fixed-point protocol formulas exactly.
type Account struct {
	Nonce             uint64   `json:"nonce"`
	BalancePrincipal  *big.Int `json:"balancePrincipal"`
	BalanceCollateral *big.Int `json:"balanceCollateral"`
}

// Normalize replaces nil balance fields with zero so callers can operate on
// the account without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return &Account{BalancePrincipal: big.NewInt(0), BalanceCollateral: big.NewInt(0)}
	}
	if a.BalancePrincipal == nil {
		a.BalancePrincipal = big.NewInt(0)
	}
	if a.BalanceCollateral == nil {
		a.BalanceCollateral = big.NewInt(0)
	}
	return a
}
