package risk

import (
	"sync/atomic"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/domain"
	"main/internal/event"
	"main/internal/idgen"
)

// PositionView is the read path into the position engine used for
// pre-trade checks. Reads happen on the risk loop goroutine.
type PositionView interface {
	Position(symbol string) (domain.Position, bool)
}

// orderQty is the size of every order the engine mints. A production
// engine would derive it from Signal.Strength.
const orderQty = 1.0

// Engine gates Signal -> Order with pre-trade checks and latches a
// kill-switch on drawdown breach or operator command. The latch is one-way:
// there is no reset path.
type Engine struct {
	b         *bus.Bus
	limits    domain.RiskLimits
	ids       *idgen.Generator
	positions PositionView

	halted atomic.Bool

	signalSubID    uint64
	violationSubID uint64
}

// NewEngine creates a risk engine and subscribes it on the risk loop bus.
func NewEngine(b *bus.Bus, limits domain.RiskLimits, ids *idgen.Generator, positions PositionView) *Engine {
	e := &Engine{
		b:         b,
		limits:    limits,
		ids:       ids,
		positions: positions,
	}
	e.signalSubID = bus.On(b, e.onSignal)
	e.violationSubID = bus.On(b, e.onRiskViolation)
	return e
}

// Close detaches the engine from the bus.
func (e *Engine) Close() {
	e.b.Unsubscribe(e.violationSubID)
	e.b.Unsubscribe(e.signalSubID)
}

// HaltTrading sets the kill-switch. Callable from any goroutine.
func (e *Engine) HaltTrading() {
	e.halted.Store(true)
}

// IsHalted reports the kill-switch state. Callable from any goroutine.
func (e *Engine) IsHalted() bool {
	return e.halted.Load()
}

func (e *Engine) onSignal(s event.Signal) {
	if e.halted.Load() {
		logs.Warnf("risk engine: trading halted, signal for %s dropped", s.Symbol)
		return
	}

	var current float64
	if pos, ok := e.positions.Position(s.Symbol); ok {
		current = pos.NetQuantity
		if current < 0 {
			current = -current
		}
	}
	if current+orderQty > e.limits.MaxPositionPerSymbol {
		logs.Warnf("risk engine: position limit %.2f reached for %s (current %.2f), signal dropped",
			e.limits.MaxPositionPerSymbol, s.Symbol, current)
		return
	}

	order := domain.Order{
		ID:         e.ids.Next(),
		StrategyID: s.StrategyID,
		Symbol:     s.Symbol,
		Side:       s.Side,
		Quantity:   orderQty,
		Price:      s.Price,
		Status:     domain.OrderStatusNew,
	}

	e.b.Publish(event.Order{Meta: s.Meta, Order: order})
}

func (e *Engine) onRiskViolation(v event.RiskViolation) {
	e.halted.Store(true)
	logs.Warnf("risk engine: %s on %s (current %.2f, limit %.2f), trading halted",
		v.Reason, v.Symbol, v.CurrentValue, v.LimitValue)
}
