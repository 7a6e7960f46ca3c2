package bus

import (
	"sync"

	"main/internal/event"
)

// Handler receives every published event.
type Handler func(event.Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a typed publish/subscribe bus. Delivery is synchronous on the
// publisher's goroutine, in subscription order. Publish copies the
// subscriber list under the lock and invokes handlers outside it, so a
// handler may publish, subscribe, or unsubscribe reentrantly without
// deadlock. A subscriber added or removed during a publish may or may not
// see the in-flight event.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

// NewBus allocates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every event and returns its id.
func (b *Bus) Subscribe(fn Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe removes a handler. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every subscriber in registration order.
func (b *Bus) Publish(e event.Event) {
	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn(e)
	}
}

// On registers a handler for a single event type. Non-matching events are
// silently ignored; the generic subscription tests the variant and forwards
// the payload.
func On[T event.Event](b *Bus, fn func(T)) uint64 {
	return b.Subscribe(func(e event.Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	})
}
