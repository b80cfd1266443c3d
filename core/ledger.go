package core

import (
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lendledger/core/events"
	"lendledger/core/state"
	"lendledger/core/types"
	"lendledger/native/loan"
	"lendledger/native/token"
	"lendledger/storage"
)

// moduleSeed derives the custody address holding escrowed principal and
// collateral. No private key exists for it, so escrowed funds can only move
// through the engine.
const moduleSeed = "lendledger/custody/loan"

// ModuleAddress returns the deterministic custody address of the loan
// module.
func ModuleAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(moduleSeed))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// GenesisAlloc seeds one account at initialisation time.
type GenesisAlloc struct {
	Address    [20]byte
	Principal  *big.Int
	Collateral *big.Int
}

// Ledger is the serialized facade over the lending protocol. Every mutating
// operation runs under a single mutex, so each RPC call observes and
// produces a consistent state snapshot.
type Ledger struct {
	mu         sync.Mutex
	db         storage.Database
	manager    *state.Manager
	engine     *loan.Engine
	principal  *token.Ledger
	collateral *token.Ledger
	feed       *events.Feed
}

// NewLedger wires the state manager, token ledgers, and loan engine over the
// given database. Protocol parameters are initialised on first boot and left
// untouched on reopen.
func NewLedger(db storage.Database, owner [20]byte, exchangeRate uint64) (*Ledger, error) {
	manager := state.NewManager(db)

	principal, err := token.NewLedger(manager, token.SymbolPrincipal)
	if err != nil {
		return nil, err
	}
	collateral, err := token.NewLedger(manager, token.SymbolCollateral)
	if err != nil {
		return nil, err
	}

	feed := events.NewFeed()
	engine := loan.NewEngine(ModuleAddress())
	engine.SetState(manager)
	engine.SetAssets(principal, collateral)
	engine.SetEmitter(feed)

	l := &Ledger{
		db:         db,
		manager:    manager,
		engine:     engine,
		principal:  principal,
		collateral: collateral,
		feed:       feed,
	}

	if _, ok, err := manager.LoanParams(); err != nil {
		return nil, err
	} else if !ok {
		if err := manager.LoanSetParams(loan.Params{ExchangeRate: exchangeRate, Owner: owner}); err != nil {
			return nil, fmt.Errorf("core: initialise params: %w", err)
		}
	}
	return l, nil
}

var genesisAppliedKey = []byte("genesis/applied")

// InitGenesis mints the configured allocations once. Reopening an already
// initialised database leaves balances untouched.
func (l *Ledger) InitGenesis(allocs []GenesisAlloc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	applied, err := l.db.Has(genesisAppliedKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, alloc := range allocs {
		if alloc.Principal != nil && alloc.Principal.Sign() > 0 {
			if err := l.principal.Mint(alloc.Address, alloc.Principal); err != nil {
				return fmt.Errorf("core: genesis principal mint: %w", err)
			}
		}
		if alloc.Collateral != nil && alloc.Collateral.Sign() > 0 {
			if err := l.collateral.Mint(alloc.Address, alloc.Collateral); err != nil {
				return fmt.Errorf("core: genesis collateral mint: %w", err)
			}
		}
	}
	return l.db.Put(genesisAppliedKey, []byte{1})
}

// SetNowFunc overrides the engine clock. Intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine.SetNowFunc(now)
}

// CreateOffer escrows the lender's principal and opens an agreement.
func (l *Ledger) CreateOffer(lender [20]byte, principal *big.Int, lockMonths uint64) (*loan.Agreement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Offer(lender, principal, lockMonths)
}

// Match fills the lender's open offer with the caller as borrower.
func (l *Ledger) Match(borrower, lender [20]byte) (*loan.Agreement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Match(borrower, lender)
}

// Repay settles the borrower's agreement and returns the total amount paid.
func (l *Ledger) Repay(borrower [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Repay(borrower)
}

// ClaimCollateral forfeits an expired agreement's collateral to the lender
// and returns the seized amount.
func (l *Ledger) ClaimCollateral(lender [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.ClaimCollateral(lender)
}

// SetExchangeRate replaces the collateral exchange rate. Owner only.
func (l *Ledger) SetExchangeRate(caller [20]byte, rate uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.SetExchangeRate(caller, rate)
}

// LoanParams returns the current protocol parameters.
func (l *Ledger) LoanParams() (loan.Params, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Params()
}

// AgreementByLender returns the lender's open agreement, if any.
func (l *Ledger) AgreementByLender(lender [20]byte) (*loan.Agreement, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.AgreementByLender(lender)
}

// AgreementByBorrower returns the borrower's filled agreement, if any.
func (l *Ledger) AgreementByBorrower(borrower [20]byte) (*loan.Agreement, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.AgreementByBorrower(borrower)
}

func (l *Ledger) ledgerFor(symbol string) (*token.Ledger, error) {
	normalized, err := token.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if normalized == token.SymbolCollateral {
		return l.collateral, nil
	}
	return l.principal, nil
}

// BalanceOf returns the holder's balance for the symbol.
func (l *Ledger) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, err := l.ledgerFor(symbol)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(addr)
}

// Transfer moves symbol units between two holders.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, err := l.ledgerFor(symbol)
	if err != nil {
		return err
	}
	return ledger.Transfer(from, to, amount)
}

// Approve grants the spender a pull allowance on the owner's balance.
func (l *Ledger) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, err := l.ledgerFor(symbol)
	if err != nil {
		return err
	}
	return ledger.Approve(owner, spender, amount)
}

// Allowance reports the spender's remaining pull allowance.
func (l *Ledger) Allowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, err := l.ledgerFor(symbol)
	if err != nil {
		return nil, err
	}
	return ledger.Allowance(owner, spender)
}

// Mint issues new symbol units to the recipient. Operator use only.
func (l *Ledger) Mint(symbol string, to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, err := l.ledgerFor(symbol)
	if err != nil {
		return err
	}
	return ledger.Mint(to, amount)
}

// TotalSupply returns the cumulative minted amount for the symbol.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, err := l.ledgerFor(symbol)
	if err != nil {
		return nil, err
	}
	return ledger.TotalSupply()
}

// Events returns a snapshot of the emitted event log.
func (l *Ledger) Events() []types.Event {
	return l.feed.Events()
}

// SubscribeEvents registers a live event listener.
func (l *Ledger) SubscribeEvents(buffer int) (<-chan types.Event, func()) {
	return l.feed.Subscribe(buffer)
}

// Close releases the underlying database.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.db.Close()
}
