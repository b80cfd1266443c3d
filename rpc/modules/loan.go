package modules

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"

	"lendledger/core"
	"lendledger/native/loan"
	"lendledger/native/token"
	"lendledger/observability"
)

// AgreementResult is the JSON shape of an agreement returned to RPC callers.
type AgreementResult struct {
	ID           string `json:"id"`
	Lender       string `json:"lender"`
	Borrower     string `json:"borrower,omitempty"`
	Principal    string `json:"principal"`
	Collateral   string `json:"collateral"`
	InterestRate uint64 `json:"interestRate"`
	LockMonths   uint64 `json:"lockMonths"`
	BorrowedAt   int64  `json:"borrowedAt,omitempty"`
	Status       string `json:"status"`
}

// ParamsResult is the JSON shape of the protocol parameters. Custody is the
// module escrow address callers must approve as spender before offer, match,
// and repay can pull funds.
type ParamsResult struct {
	ExchangeRate uint64 `json:"exchangeRate"`
	Owner        string `json:"owner"`
	Custody      string `json:"custody"`
}

// LoanModule bridges RPC handlers and the serialized ledger facade.
type LoanModule struct {
	ledger  *core.Ledger
	metrics *observability.LedgerMetrics
	format  func([20]byte) string
}

// NewLoanModule wires the loan RPC module. The format callback renders raw
// addresses into the transport's external representation.
func NewLoanModule(ledger *core.Ledger, format func([20]byte) string) *LoanModule {
	if format == nil {
		format = func(raw [20]byte) string { return hex.EncodeToString(raw[:]) }
	}
	return &LoanModule{ledger: ledger, metrics: observability.Ledger(), format: format}
}

func (m *LoanModule) moduleUnavailable() *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "loan module not available"}
}

func (m *LoanModule) formatAgreement(a *loan.Agreement) *AgreementResult {
	if a == nil {
		return nil
	}
	result := &AgreementResult{
		ID:           hex.EncodeToString(a.ID[:]),
		Lender:       m.format(a.Lender),
		Principal:    a.Principal.String(),
		Collateral:   a.Collateral.String(),
		InterestRate: a.InterestRate,
		LockMonths:   a.LockMonths,
		Status:       a.Status.String(),
	}
	if a.Borrower != ([20]byte{}) {
		result.Borrower = m.format(a.Borrower)
		result.BorrowedAt = a.BorrowedAt
	}
	return result
}

// CreateOffer opens a lending offer for the caller.
func (m *LoanModule) CreateOffer(lender [20]byte, principal *big.Int, lockMonths uint64) (*AgreementResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	agreement, err := m.ledger.CreateOffer(lender, principal, lockMonths)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.metrics.RecordOperation("offer")
	return m.formatAgreement(agreement), nil
}

// Match fills the target lender's offer with the caller as borrower.
func (m *LoanModule) Match(borrower, lender [20]byte) (*AgreementResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	agreement, err := m.ledger.Match(borrower, lender)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.metrics.RecordOperation("match")
	return m.formatAgreement(agreement), nil
}

// Repay settles the caller's loan and reports the amount paid.
func (m *LoanModule) Repay(borrower [20]byte) (string, *ModuleError) {
	if m == nil || m.ledger == nil {
		return "", m.moduleUnavailable()
	}
	totalDue, err := m.ledger.Repay(borrower)
	if err != nil {
		return "", m.wrapError(err)
	}
	m.metrics.RecordOperation("repay")
	return totalDue.String(), nil
}

// ClaimCollateral forfeits an expired loan's collateral to the caller.
func (m *LoanModule) ClaimCollateral(lender [20]byte) (string, *ModuleError) {
	if m == nil || m.ledger == nil {
		return "", m.moduleUnavailable()
	}
	claimed, err := m.ledger.ClaimCollateral(lender)
	if err != nil {
		return "", m.wrapError(err)
	}
	m.metrics.RecordOperation("claim")
	return claimed.String(), nil
}

// SetExchangeRate updates the collateral exchange rate. Owner only.
func (m *LoanModule) SetExchangeRate(caller [20]byte, rate uint64) *ModuleError {
	if m == nil || m.ledger == nil {
		return m.moduleUnavailable()
	}
	if err := m.ledger.SetExchangeRate(caller, rate); err != nil {
		return m.wrapError(err)
	}
	return nil
}

// GetAgreement resolves an agreement from either party's address.
func (m *LoanModule) GetAgreement(addr [20]byte) (*AgreementResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	agreement, ok, err := m.ledger.AgreementByLender(addr)
	if err != nil {
		return nil, m.wrapError(err)
	}
	if !ok {
		agreement, ok, err = m.ledger.AgreementByBorrower(addr)
		if err != nil {
			return nil, m.wrapError(err)
		}
	}
	if !ok {
		return nil, m.wrapError(loan.ErrAgreementNotFound)
	}
	return m.formatAgreement(agreement), nil
}

// GetParams returns the current protocol parameters.
func (m *LoanModule) GetParams() (*ParamsResult, *ModuleError) {
	if m == nil || m.ledger == nil {
		return nil, m.moduleUnavailable()
	}
	params, err := m.ledger.LoanParams()
	if err != nil {
		return nil, m.wrapError(err)
	}
	return &ParamsResult{
		ExchangeRate: params.ExchangeRate,
		Owner:        m.format(params.Owner),
		Custody:      m.format(core.ModuleAddress()),
	}, nil
}

func (m *LoanModule) wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	code := codeServerError
	switch {
	case errors.Is(err, loan.ErrAgreementNotFound):
		status = http.StatusNotFound
		code = codeInvalidParams
	case errors.Is(err, loan.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeInvalidParams
	case errors.Is(err, loan.ErrInvalidAmount),
		errors.Is(err, loan.ErrDuplicateAgreement),
		errors.Is(err, loan.ErrInvalidState),
		errors.Is(err, loan.ErrInsufficientBalance),
		errors.Is(err, loan.ErrLockNotExpired),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInvalidAmount):
		status = http.StatusBadRequest
		code = codeInvalidParams
	}
	return &ModuleError{HTTPStatus: status, Code: code, Message: err.Error()}
}
