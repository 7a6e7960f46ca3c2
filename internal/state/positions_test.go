package state

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"main/internal/bus"
	"main/internal/domain"
	"main/internal/event"
)

type harness struct {
	bus        *bus.Bus
	engine     *Engine
	updates    []event.PositionUpdate
	violations []event.RiskViolation
	nextID     uint64
}

func newHarness(t *testing.T, limits domain.RiskLimits) *harness {
	t.Helper()
	h := &harness{bus: bus.NewBus()}
	h.engine = NewEngine(h.bus, limits)
	t.Cleanup(h.engine.Close)
	bus.On(h.bus, func(u event.PositionUpdate) { h.updates = append(h.updates, u) })
	bus.On(h.bus, func(v event.RiskViolation) { h.violations = append(h.violations, v) })
	return h
}

// fill routes an order + fill pair through the engine, the way the risk
// loop sees them.
func (h *harness) fill(symbol string, side domain.Side, qty, price float64) {
	h.nextID++
	h.bus.Publish(event.Order{Order: domain.Order{
		ID:       h.nextID,
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
	}})
	h.bus.Publish(event.ExecutionReport{
		OrderID:   h.nextID,
		FilledQty: qty,
		FillPrice: price,
		Status:    event.ExecFilled,
	})
}

func noLimits() domain.RiskLimits {
	return domain.RiskLimits{MaxPositionPerSymbol: 1e9, MaxDrawdown: -1e18}
}

func TestFlatOpenThenClose(t *testing.T) {
	h := newHarness(t, noLimits())

	h.fill("AAPL", domain.SideBuy, 2, 100)
	h.fill("AAPL", domain.SideSell, 2, 100)

	require.Len(t, h.updates, 2)
	final := h.updates[1].Position
	require.Equal(t, 0.0, final.NetQuantity)
	require.Equal(t, 0.0, final.RealizedPnL)
	require.Equal(t, 100.0, final.AveragePrice)
}

func TestGrowThenShrinkToFlat(t *testing.T) {
	h := newHarness(t, noLimits())

	h.fill("AAPL", domain.SideBuy, 1, 100)
	h.fill("AAPL", domain.SideBuy, 1, 110)
	h.fill("AAPL", domain.SideSell, 2, 120)

	require.Len(t, h.updates, 3)

	require.Equal(t, 1.0, h.updates[0].Position.NetQuantity)
	require.Equal(t, 100.0, h.updates[0].Position.AveragePrice)
	require.Equal(t, 0.0, h.updates[0].Position.RealizedPnL)

	require.Equal(t, 2.0, h.updates[1].Position.NetQuantity)
	require.Equal(t, 105.0, h.updates[1].Position.AveragePrice)
	require.Equal(t, 0.0, h.updates[1].Position.RealizedPnL)

	require.Equal(t, 0.0, h.updates[2].Position.NetQuantity)
	require.Equal(t, 105.0, h.updates[2].Position.AveragePrice)
	require.Equal(t, 30.0, h.updates[2].Position.RealizedPnL)
}

func TestReversal(t *testing.T) {
	h := newHarness(t, noLimits())

	h.fill("AAPL", domain.SideBuy, 1, 100)
	h.fill("AAPL", domain.SideSell, 2, 90)

	require.Len(t, h.updates, 2)

	require.Equal(t, 1.0, h.updates[0].Position.NetQuantity)
	require.Equal(t, 100.0, h.updates[0].Position.AveragePrice)

	final := h.updates[1].Position
	require.Equal(t, -1.0, final.NetQuantity)
	require.Equal(t, 90.0, final.AveragePrice)
	require.Equal(t, -10.0, final.RealizedPnL)
}

func TestPartialCloseKeepsAveragePrice(t *testing.T) {
	h := newHarness(t, noLimits())

	h.fill("AAPL", domain.SideBuy, 4, 100)
	h.fill("AAPL", domain.SideSell, 1, 110)

	final := h.updates[1].Position
	require.Equal(t, 3.0, final.NetQuantity)
	require.Equal(t, 100.0, final.AveragePrice)
	require.Equal(t, 10.0, final.RealizedPnL)
}

func TestShortSidePnL(t *testing.T) {
	h := newHarness(t, noLimits())

	h.fill("AAPL", domain.SideSell, 2, 100)
	h.fill("AAPL", domain.SideBuy, 2, 80)

	final := h.updates[1].Position
	require.Equal(t, 0.0, final.NetQuantity)
	require.Equal(t, 40.0, final.RealizedPnL)
}

func TestDrawdownViolation(t *testing.T) {
	h := newHarness(t, domain.RiskLimits{MaxPositionPerSymbol: 1e9, MaxDrawdown: -10})

	h.fill("AAPL", domain.SideBuy, 1, 100)
	h.fill("AAPL", domain.SideSell, 1, 80)

	require.Len(t, h.updates, 2)
	require.Equal(t, -20.0, h.updates[1].Position.RealizedPnL)

	require.Len(t, h.violations, 1)
	v := h.violations[0]
	require.Equal(t, "AAPL", v.Symbol)
	require.Equal(t, "Max Drawdown Exceeded", v.Reason)
	require.Equal(t, -20.0, v.CurrentValue)
	require.Equal(t, -10.0, v.LimitValue)
}

func TestNonFilledReportsIgnored(t *testing.T) {
	h := newHarness(t, noLimits())

	h.bus.Publish(event.Order{Order: domain.Order{ID: 1, Symbol: "AAPL", Side: domain.SideBuy}})
	h.bus.Publish(event.ExecutionReport{OrderID: 1, Status: event.ExecAccepted})
	h.bus.Publish(event.ExecutionReport{OrderID: 1, Status: event.ExecRejected})

	require.Empty(t, h.updates)
}

func TestFillWithoutCachedOrderDropped(t *testing.T) {
	h := newHarness(t, noLimits())

	h.bus.Publish(event.ExecutionReport{OrderID: 77, FilledQty: 1, FillPrice: 100, Status: event.ExecFilled})

	require.Empty(t, h.updates)
	_, ok := h.engine.Position("AAPL")
	require.False(t, ok)
}

func TestHydrateSeedsWithoutPublishing(t *testing.T) {
	h := newHarness(t, noLimits())

	h.engine.HydratePosition(domain.Position{
		Symbol:       "AAPL",
		NetQuantity:  5,
		AveragePrice: 90,
	})

	require.Empty(t, h.updates)
	pos, ok := h.engine.Position("AAPL")
	require.True(t, ok)
	require.Equal(t, 5.0, pos.NetQuantity)

	// A later fill folds into the hydrated state.
	h.fill("AAPL", domain.SideSell, 5, 100)
	require.Len(t, h.updates, 1)
	require.Equal(t, 0.0, h.updates[0].Position.NetQuantity)
	require.Equal(t, 50.0, h.updates[0].Position.RealizedPnL)
}

func TestSnapshotsCopyAllSymbols(t *testing.T) {
	h := newHarness(t, noLimits())

	h.fill("AAPL", domain.SideBuy, 1, 100)
	h.fill("MSFT", domain.SideSell, 2, 50)

	snapshots := h.engine.Snapshots()
	require.Len(t, snapshots, 2)

	bySymbol := make(map[string]domain.Position, 2)
	for _, pos := range snapshots {
		bySymbol[pos.Symbol] = pos
	}
	require.Equal(t, 1.0, bySymbol["AAPL"].NetQuantity)
	require.Equal(t, -2.0, bySymbol["MSFT"].NetQuantity)
}

// The entry price never goes negative while fills stay positive-priced.
func TestFillMathProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pos := domain.Position{Symbol: "X"}
		fills := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) [2]float64 {
			qty := float64(rapid.IntRange(1, 50).Draw(t, "qty"))
			if rapid.Bool().Draw(t, "sell") {
				qty = -qty
			}
			price := float64(rapid.IntRange(1, 10000).Draw(t, "price")) / 100
			return [2]float64{qty, price}
		}), 1, 50).Draw(t, "fills")

		for _, f := range fills {
			applyFill(&pos, f[0], f[1])
			if pos.AveragePrice < 0 {
				t.Fatalf("average price went negative: %+v", pos)
			}
		}
	})
}

// Round trips at a single price realize nothing and keep the entry price.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		qty := float64(rapid.IntRange(1, 100).Draw(t, "qty"))
		price := float64(rapid.IntRange(1, 100000).Draw(t, "price")) / 100

		pos := domain.Position{Symbol: "X"}
		applyFill(&pos, qty, price)
		applyFill(&pos, -qty, price)

		if pos.NetQuantity != 0 {
			t.Fatalf("not flat after round trip: %+v", pos)
		}
		if pos.RealizedPnL != 0 {
			t.Fatalf("pnl after round trip at one price: %+v", pos)
		}
		if pos.AveragePrice != price {
			t.Fatalf("average price changed on pure shrink: %+v", pos)
		}
	})
}
