package loan

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"lendledger/core/types"
)

const (
	EventTypeOfferCreated      = "loan.offer.created"
	EventTypeMatched           = "loan.matched"
	EventTypeRepaid            = "loan.repaid"
	EventTypeCollateralClaimed = "loan.collateral.claimed"
	EventTypeRateUpdated       = "loan.rate.updated"
	EventTypeBalanceChecked    = "loan.balance.checked"
)

// NewOfferCreatedEvent returns the canonical payload emitted when a lender
// opens an offer.
func NewOfferCreatedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeOfferCreated, a)
}

// NewMatchedEvent returns the canonical payload emitted when a borrower
// fills an offer.
func NewMatchedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeMatched, a)
}

// NewRepaidEvent returns the payload emitted on settlement, carrying the
// total amount (principal plus interest) moved to the lender.
func NewRepaidEvent(a *Agreement, totalDue *big.Int) *types.Event {
	evt := newAgreementEvent(EventTypeRepaid, a)
	evt.Attributes["totalDue"] = amountString(totalDue)
	return evt
}

// NewCollateralClaimedEvent returns the payload emitted when the lender
// seizes collateral after expiry.
func NewCollateralClaimedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeCollateralClaimed, a)
}

// NewRateUpdatedEvent returns the payload emitted when the owner replaces
// the exchange rate.
func NewRateUpdatedEvent(owner [20]byte, previous, updated uint64) *types.Event {
	return &types.Event{Type: EventTypeRateUpdated, Attributes: map[string]string{
		"owner":    hex.EncodeToString(owner[:]),
		"previous": strconv.FormatUint(previous, 10),
		"rate":     strconv.FormatUint(updated, 10),
	}}
}

// NewBalanceCheckedEvent returns the diagnostic payload emitted when the
// engine reads a lender's principal balance during offer creation.
func NewBalanceCheckedEvent(addr [20]byte, balance *big.Int) *types.Event {
	return &types.Event{Type: EventTypeBalanceChecked, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"balance": amountString(balance),
	}}
}

func newAgreementEvent(eventType string, a *Agreement) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(a.ID[:])
	attrs["lender"] = hex.EncodeToString(a.Lender[:])
	attrs["principal"] = amountString(a.Principal)
	attrs["interestRate"] = strconv.FormatUint(a.InterestRate, 10)
	attrs["lockMonths"] = strconv.FormatUint(a.LockMonths, 10)
	attrs["status"] = a.Status.String()
	if a.Borrower != ([20]byte{}) {
		attrs["borrower"] = hex.EncodeToString(a.Borrower[:])
		attrs["collateral"] = amountString(a.Collateral)
		attrs["borrowedAt"] = strconv.FormatInt(a.BorrowedAt, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type loanEvent struct {
	evt *types.Event
}

func (e loanEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e loanEvent) Event() *types.Event { return e.evt }
