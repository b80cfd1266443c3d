package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/native/loan"
	"lendledger/native/token"
	"lendledger/storage"
)

func testAddr(suffix byte) [20]byte {
	var addr [20]byte
	addr[len(addr)-1] = suffix
	return addr
}

func newTestLedger(t *testing.T, db storage.Database) *Ledger {
	t.Helper()
	ledger, err := NewLedger(db, testAddr(0xEE), 5000)
	require.NoError(t, err)
	return ledger
}

func TestLedgerFullLifecycle(t *testing.T) {
	db := storage.NewMemDB()
	ledger := newTestLedger(t, db)
	custody := ModuleAddress()
	alice, bob := testAddr(0x01), testAddr(0x02)

	now := int64(1_700_000_000)
	ledger.SetNowFunc(func() int64 { return now })

	require.NoError(t, ledger.InitGenesis([]GenesisAlloc{
		{Address: alice, Principal: big.NewInt(100)},
		{Address: bob, Collateral: big.NewInt(500)},
	}))

	// Escrow pulls are allowance gated: offering before approval fails and
	// moves nothing.
	_, err := ledger.CreateOffer(alice, big.NewInt(20), 6)
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, ledger.Approve(token.SymbolPrincipal, alice, custody, big.NewInt(20)))
	offered, err := ledger.CreateOffer(alice, big.NewInt(20), 6)
	require.NoError(t, err)
	require.Equal(t, loan.StatusActive, offered.Status)

	escrowed, err := ledger.BalanceOf(token.SymbolPrincipal, custody)
	require.NoError(t, err)
	require.Equal(t, int64(20), escrowed.Int64())

	_, err = ledger.Match(bob, alice)
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, ledger.Approve(token.SymbolCollateral, bob, custody, big.NewInt(200)))
	matched, err := ledger.Match(bob, alice)
	require.NoError(t, err)
	require.Equal(t, loan.StatusFilled, matched.Status)
	require.Equal(t, int64(200), matched.Collateral.Int64())
	require.Equal(t, now, matched.BorrowedAt)

	borrowed, err := ledger.BalanceOf(token.SymbolPrincipal, bob)
	require.NoError(t, err)
	require.Equal(t, int64(20), borrowed.Int64())

	// Settle: 20 principal plus 6 interest over the six-month term.
	require.NoError(t, ledger.Mint(token.SymbolPrincipal, bob, big.NewInt(6)))
	require.NoError(t, ledger.Approve(token.SymbolPrincipal, bob, custody, big.NewInt(26)))
	totalDue, err := ledger.Repay(bob)
	require.NoError(t, err)
	require.Equal(t, int64(26), totalDue.Int64())

	lenderBalance, err := ledger.BalanceOf(token.SymbolPrincipal, alice)
	require.NoError(t, err)
	require.Equal(t, int64(106), lenderBalance.Int64())

	returned, err := ledger.BalanceOf(token.SymbolCollateral, bob)
	require.NoError(t, err)
	require.Equal(t, int64(500), returned.Int64())

	for _, symbol := range []string{token.SymbolPrincipal, token.SymbolCollateral} {
		held, err := ledger.BalanceOf(symbol, custody)
		require.NoError(t, err)
		require.Zero(t, held.Sign(), "custody must be empty after settlement")
	}

	// Supply conservation: every unit minted is still held by a party.
	supply, err := ledger.TotalSupply(token.SymbolPrincipal)
	require.NoError(t, err)
	require.Equal(t, int64(106), supply.Int64())

	_, ok, err := ledger.AgreementByLender(alice)
	require.NoError(t, err)
	require.False(t, ok, "terminal agreements are deleted")

	eventTypes := make([]string, 0)
	for _, evt := range ledger.Events() {
		eventTypes = append(eventTypes, evt.Type)
	}
	require.Equal(t, []string{
		loan.EventTypeBalanceChecked,
		loan.EventTypeOfferCreated,
		loan.EventTypeMatched,
		loan.EventTypeRepaid,
	}, eventTypes)
}

func TestLedgerClaimAfterExpiry(t *testing.T) {
	db := storage.NewMemDB()
	ledger := newTestLedger(t, db)
	custody := ModuleAddress()
	alice, bob := testAddr(0x01), testAddr(0x02)

	now := int64(1_700_000_000)
	ledger.SetNowFunc(func() int64 { return now })

	require.NoError(t, ledger.InitGenesis([]GenesisAlloc{
		{Address: alice, Principal: big.NewInt(100)},
		{Address: bob, Collateral: big.NewInt(500)},
	}))
	require.NoError(t, ledger.Approve(token.SymbolPrincipal, alice, custody, big.NewInt(20)))
	require.NoError(t, ledger.Approve(token.SymbolCollateral, bob, custody, big.NewInt(200)))
	_, err := ledger.CreateOffer(alice, big.NewInt(20), 6)
	require.NoError(t, err)
	_, err = ledger.Match(bob, alice)
	require.NoError(t, err)

	_, err = ledger.ClaimCollateral(alice)
	require.ErrorIs(t, err, loan.ErrLockNotExpired)

	now += 6 * loan.SecondsPerMonth
	claimed, err := ledger.ClaimCollateral(alice)
	require.NoError(t, err)
	require.Equal(t, int64(200), claimed.Int64())

	seized, err := ledger.BalanceOf(token.SymbolCollateral, alice)
	require.NoError(t, err)
	require.Equal(t, int64(200), seized.Int64())

	_, ok, err := ledger.AgreementByBorrower(bob)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLedgerParamsSurviveReopen(t *testing.T) {
	db := storage.NewMemDB()
	ledger := newTestLedger(t, db)
	owner := testAddr(0xEE)

	require.NoError(t, ledger.SetExchangeRate(owner, 7000))
	require.ErrorIs(t, ledger.SetExchangeRate(testAddr(0x09), 9000), loan.ErrUnauthorized)

	// Reopening with different boot-time defaults must not clobber the
	// stored parameters.
	reopened, err := NewLedger(db, testAddr(0x0A), 1234)
	require.NoError(t, err)
	params, err := reopened.LoanParams()
	require.NoError(t, err)
	require.Equal(t, uint64(7000), params.ExchangeRate)
	require.Equal(t, owner, params.Owner)
}

func TestModuleAddressStable(t *testing.T) {
	require.Equal(t, ModuleAddress(), ModuleAddress())
	require.NotEqual(t, [20]byte{}, ModuleAddress())
}
