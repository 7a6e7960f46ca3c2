package state

import (
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/domain"
	"main/internal/event"
)

type orderInfo struct {
	symbol string
	side   domain.Side
}

// Engine maintains per-symbol net position, weighted-average entry price
// and realized PnL, and tests the drawdown limit after every fill. Handlers
// run on the risk loop; Position and Snapshots may be read from any
// goroutine under the shared lock. The lock is never held across an
// outbound publish.
type Engine struct {
	b      *bus.Bus
	limits domain.RiskLimits

	// order id -> {symbol, side}; execution reports carry neither.
	orderCache map[uint64]orderInfo

	mu        sync.RWMutex
	positions map[string]domain.Position

	orderSubID uint64
	fillSubID  uint64
}

// NewEngine creates a position engine and subscribes it on the risk loop
// bus, Order before ExecutionReport so the cache is warm when a fill for
// the same order arrives in the same dispatch.
func NewEngine(b *bus.Bus, limits domain.RiskLimits) *Engine {
	e := &Engine{
		b:          b,
		limits:     limits,
		orderCache: make(map[uint64]orderInfo),
		positions:  make(map[string]domain.Position),
	}
	e.orderSubID = bus.On(b, e.onOrder)
	e.fillSubID = bus.On(b, e.onFill)
	return e
}

// Close detaches the engine from the bus.
func (e *Engine) Close() {
	e.b.Unsubscribe(e.fillSubID)
	e.b.Unsubscribe(e.orderSubID)
}

// HydratePosition seats a pre-existing position without publishing an
// update. Warm-up only: call before the owning loop is scheduled.
func (e *Engine) HydratePosition(pos domain.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[pos.Symbol] = pos
}

// Position returns the position for a symbol, if any.
func (e *Engine) Position(symbol string) (domain.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[symbol]
	return pos, ok
}

// Snapshots returns a consistent copy of all positions. Callable from any
// goroutine.
func (e *Engine) Snapshots() []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		result = append(result, pos)
	}
	return result
}

func (e *Engine) onOrder(ev event.Order) {
	e.orderCache[ev.Order.ID] = orderInfo{
		symbol: ev.Order.Symbol,
		side:   ev.Order.Side,
	}
}

func (e *Engine) onFill(ev event.ExecutionReport) {
	if ev.Status != event.ExecFilled {
		return
	}

	info, ok := e.orderCache[ev.OrderID]
	if !ok {
		logs.Warnf("position engine: no cached order for order id %d, fill dropped", ev.OrderID)
		return
	}

	signedQty := ev.FilledQty
	if info.side == domain.SideSell {
		signedQty = -signedQty
	}

	var (
		update    event.PositionUpdate
		violation event.RiskViolation
		breached  bool
	)

	e.mu.Lock()
	pos := e.positions[info.symbol]
	if pos.Symbol == "" {
		pos.Symbol = info.symbol
	}

	applyFill(&pos, signedQty, ev.FillPrice)
	e.positions[info.symbol] = pos

	update = event.PositionUpdate{Meta: ev.Meta, Position: pos}

	if pos.RealizedPnL < e.limits.MaxDrawdown {
		breached = true
		violation = event.RiskViolation{
			Meta:         ev.Meta,
			Symbol:       info.symbol,
			Reason:       "Max Drawdown Exceeded",
			CurrentValue: pos.RealizedPnL,
			LimitValue:   e.limits.MaxDrawdown,
		}
	}
	e.mu.Unlock()

	e.b.Publish(update)
	if breached {
		e.b.Publish(violation)
	}

	// One fill per order in the current model; the entry is spent.
	delete(e.orderCache, ev.OrderID)
}

// applyFill folds a signed fill into the position. Three regimes: grow
// (same direction, or opening from flat), shrink (opposite direction within
// the open quantity), reversal (opposite direction through zero).
func applyFill(pos *domain.Position, signedQty, fillPrice float64) {
	current := pos.NetQuantity

	if current == 0 {
		pos.NetQuantity = signedQty
		pos.AveragePrice = fillPrice
		return
	}

	sameDirection := (current > 0) == (signedQty > 0)
	if sameDirection {
		total := current + signedQty
		pos.AveragePrice = (current*pos.AveragePrice + signedQty*fillPrice) / total
		pos.NetQuantity = total
		return
	}

	absCurrent := abs(current)
	absFill := abs(signedQty)
	directionSign := 1.0
	if current < 0 {
		directionSign = -1.0
	}

	if absFill <= absCurrent {
		// Shrink: realize PnL on the closed quantity, entry price stays.
		pos.RealizedPnL += absFill * (fillPrice - pos.AveragePrice) * directionSign
		pos.NetQuantity = current + signedQty
		return
	}

	// Reversal: close the whole position, then open the remainder the
	// other way at the fill price.
	pos.RealizedPnL += absCurrent * (fillPrice - pos.AveragePrice) * directionSign
	open := absFill - absCurrent
	if signedQty > 0 {
		pos.NetQuantity = open
	} else {
		pos.NetQuantity = -open
	}
	pos.AveragePrice = fillPrice
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
