package loan

// Params holds the protocol-level mutable configuration: the collateral
// exchange rate and the single owner identity allowed to replace it. The
// record is persisted through the engine state so the rate survives
// restarts.
type Params struct {
	// ExchangeRate converts principal value into required collateral value;
	// three implied decimal digits (1000 = 1.0). The update path performs
	// no bounds checking; a zero rate makes matching degenerate and is the
	// operator's responsibility.
	ExchangeRate uint64
	// Owner is the only identity permitted to update the exchange rate.
	Owner [20]byte
}
