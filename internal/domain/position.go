package domain

// Position is the per-symbol net exposure. NetQuantity is signed: positive
// long, negative short, zero flat. AveragePrice is the weighted entry price
// of the open quantity and never changes on a pure shrink.
type Position struct {
	Symbol       string
	NetQuantity  float64
	AveragePrice float64
	RealizedPnL  float64
}

// Flat reports whether the position holds no exposure.
func (p Position) Flat() bool {
	return p.NetQuantity == 0
}
