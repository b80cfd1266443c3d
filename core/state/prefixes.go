package state

var (
	accountPrefix       = []byte("acct/")
	allowancePrefix     = []byte("allow/")
	supplyPrefix        = []byte("supply/")
	loanAgreementPrefix = []byte("loan/agreement/")
	loanLenderPrefix    = []byte("loan/lender/")
	loanBorrowerPrefix  = []byte("loan/borrower/")
	loanParamsKey       = []byte("loan/params")
	loanNonceKey        = []byte("loan/nonce")
)

func accountKey(addr [20]byte) []byte {
	return append(append([]byte{}, accountPrefix...), addr[:]...)
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	key := append(append([]byte{}, allowancePrefix...), symbol...)
	key = append(key, '/')
	key = append(key, owner[:]...)
	key = append(key, spender[:]...)
	return key
}

func supplyKey(symbol string) []byte {
	return append(append([]byte{}, supplyPrefix...), symbol...)
}

func agreementKey(id [32]byte) []byte {
	return append(append([]byte{}, loanAgreementPrefix...), id[:]...)
}

func lenderKey(addr [20]byte) []byte {
	return append(append([]byte{}, loanLenderPrefix...), addr[:]...)
}

func borrowerKey(addr [20]byte) []byte {
	return append(append([]byte{}, loanBorrowerPrefix...), addr[:]...)
}
