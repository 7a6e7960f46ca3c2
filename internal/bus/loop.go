package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/event"
)

const idleWait = 10 * time.Millisecond

// Loop is a thread-affine actor: one goroutine draining an inbox into a
// local bus. All subscribers of the bus run exclusively on the loop
// goroutine. Events remaining in the inbox when the loop stops are
// discarded.
type Loop struct {
	name  string
	inbox *Inbox
	bus   *Bus

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	err     error
}

// NewLoop creates a stopped loop with its own inbox and bus.
func NewLoop(name string) *Loop {
	return &Loop{
		name:  name,
		inbox: NewInbox(),
		bus:   NewBus(),
	}
}

// Bus returns the loop-owned bus for subscriber registration.
func (l *Loop) Bus() *Bus { return l.bus }

// Push enqueues an event from any goroutine.
func (l *Loop) Push(e event.Event) {
	l.inbox.Push(e)
}

// Start spawns the worker goroutine. Idempotent.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.err = nil
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
}

// Stop signals the worker and joins it. Idempotent; returns the error that
// terminated the worker, if any (a handler panic).
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		err := l.err
		l.mu.Unlock()
		return err
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) run(stop, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			l.mu.Lock()
			l.err = fmt.Errorf("loop %s: handler panic: %v", l.name, r)
			l.running = false
			l.mu.Unlock()
			logs.Errorf("loop %s terminated by handler panic: %v", l.name, r)
		}
	}()

	idle := time.NewTimer(idleWait)
	defer idle.Stop()

	for {
		if e, ok := l.inbox.TryPop(); ok {
			l.bus.Publish(e)
			continue
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(idleWait)

		select {
		case <-stop:
			return
		case <-idle.C:
		}
	}
}
