package strategy

import (
	"main/internal/bus"
	"main/internal/domain"
	"main/internal/event"
)

// Threshold is a minimal strategy: any tick whose price clears the
// threshold produces a full-strength buy signal. It exists to exercise the
// pipeline; it holds no state and never talks to execution directly.
type Threshold struct {
	b          *bus.Bus
	strategyID uint32
	threshold  float64

	subID uint64
}

// NewThreshold creates the strategy and subscribes it on the strategy loop
// bus.
func NewThreshold(b *bus.Bus, strategyID uint32, threshold float64) *Threshold {
	s := &Threshold{
		b:          b,
		strategyID: strategyID,
		threshold:  threshold,
	}
	s.subID = bus.On(b, s.onMarketData)
	return s
}

// Close detaches the strategy from the bus.
func (s *Threshold) Close() {
	s.b.Unsubscribe(s.subID)
}

func (s *Threshold) onMarketData(md event.MarketData) {
	if md.Price <= s.threshold {
		return
	}

	s.b.Publish(event.Signal{
		Meta:       md.Meta,
		StrategyID: s.strategyID,
		Symbol:     md.Symbol,
		Side:       domain.SideBuy,
		Strength:   1.0,
		Price:      md.Price,
	})
}
