package og

import (
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/domain"
	"main/internal/event"
)

// Tracker owns the authoritative lifecycle state of every active order.
// It lives on the risk loop; all handlers run on that goroutine. Terminal
// orders are erased from the active map on their final transition.
type Tracker struct {
	b      *bus.Bus
	orders map[uint64]domain.Order

	orderSubID uint64
	execSubID  uint64
}

// NewTracker creates a tracker and subscribes it on the risk loop bus.
// Must be constructed before any other Order subscriber on the same loop so
// its New insertion is visible downstream.
func NewTracker(b *bus.Bus) *Tracker {
	t := &Tracker{
		b:      b,
		orders: make(map[uint64]domain.Order),
	}
	t.orderSubID = bus.On(b, t.onOrder)
	t.execSubID = bus.On(b, t.onExecutionReport)
	return t
}

// Close detaches the tracker from the bus.
func (t *Tracker) Close() {
	t.b.Unsubscribe(t.execSubID)
	t.b.Unsubscribe(t.orderSubID)
}

// HydrateOrder seats a pre-existing order without publishing an update.
// Warm-up only: call before the owning loop is scheduled.
func (t *Tracker) HydrateOrder(o domain.Order) {
	t.orders[o.ID] = o
}

// Order returns a copy of the tracked order.
func (t *Tracker) Order(id uint64) (domain.Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

// ActiveCount returns the number of non-terminal orders.
func (t *Tracker) ActiveCount() int {
	return len(t.orders)
}

func (t *Tracker) onOrder(e event.Order) {
	o := e.Order
	o.Status = domain.OrderStatusNew
	t.orders[o.ID] = o

	t.b.Publish(event.OrderUpdate{
		Meta:           e.Meta,
		Order:          o,
		PreviousStatus: domain.OrderStatusNew,
	})
}

func (t *Tracker) onExecutionReport(e event.ExecutionReport) {
	o, ok := t.orders[e.OrderID]
	if !ok {
		logs.Warnf("order tracker: execution report for unknown order id %d, dropped", e.OrderID)
		return
	}

	previous := o.Status
	proposed := mapExecStatus(e.Status)
	if proposed == domain.OrderStatusUnknown {
		logs.Warnf("order tracker: unmapped execution status %d for order id %d, dropped", e.Status, e.OrderID)
		return
	}

	if !previous.CanTransition(proposed) {
		logs.Warnf("order tracker: illegal transition %s -> %s for order id %d, dropped",
			previous, proposed, e.OrderID)
		return
	}

	o.Status = proposed
	if proposed == domain.OrderStatusFilled {
		o.FilledQty = e.FilledQty
	}
	t.orders[e.OrderID] = o

	t.b.Publish(event.OrderUpdate{
		Meta:           e.Meta,
		Order:          o,
		PreviousStatus: previous,
	})

	if proposed.IsTerminal() {
		delete(t.orders, e.OrderID)
	}
}

func mapExecStatus(s event.ExecStatus) domain.OrderStatus {
	switch s {
	case event.ExecAccepted:
		return domain.OrderStatusAccepted
	case event.ExecFilled:
		return domain.OrderStatusFilled
	case event.ExecRejected:
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusUnknown
	}
}
