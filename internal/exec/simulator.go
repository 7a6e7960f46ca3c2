package exec

import (
	"main/internal/bus"
	"main/internal/clock"
	"main/internal/event"
)

// Simulator converts orders into execution reports on the order routing
// loop: an acknowledgment followed by a perfect fill of the full quantity
// at the order price. No slippage, no partial fills; deterministic for
// backtesting.
type Simulator struct {
	b     *bus.Bus
	clock clock.Clock

	subID uint64
}

// NewSimulator creates the simulator and subscribes it on the routing loop
// bus.
func NewSimulator(b *bus.Bus, clk clock.Clock) *Simulator {
	s := &Simulator{b: b, clock: clk}
	s.subID = bus.On(b, s.onOrder)
	return s
}

// Close detaches the simulator from the bus.
func (s *Simulator) Close() {
	s.b.Unsubscribe(s.subID)
}

func (s *Simulator) onOrder(e event.Order) {
	meta := event.Meta{Seq: e.Seq, TsMs: s.clock.NowMs()}

	s.b.Publish(event.ExecutionReport{
		Meta:    meta,
		OrderID: e.Order.ID,
		Status:  event.ExecAccepted,
	})

	s.b.Publish(event.ExecutionReport{
		Meta:      meta,
		OrderID:   e.Order.ID,
		FilledQty: e.Order.Quantity,
		FillPrice: e.Order.Price,
		Status:    event.ExecFilled,
	})
}
