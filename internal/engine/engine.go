package engine

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/clock"
	"main/internal/event"
	"main/internal/exec"
	"main/internal/gateway"
	"main/internal/idgen"
	"main/internal/ipc"
	"main/internal/obs"
	"main/internal/og"
	"main/internal/ops"
	"main/internal/reconcile"
	"main/internal/risk"
	"main/internal/state"
	"main/internal/strategy"
)

type subscription struct {
	bus *bus.Bus
	id  uint64
}

// Engine is the composition root. It owns the loops, the I/O workers, the
// id generator, the sequencer and every logic component, and wires them
// into the pipeline:
//
//	market data worker -> strategy loop -> risk loop -> routing loop
//	                                           ^_____________|
//	risk loop telemetry -> ipc worker
//
// Start and Stop follow a fixed order so that no event can reach a
// subscriber that does not exist yet, and no handler can fire on a
// component that is being torn down.
type Engine struct {
	cfg   ops.Config
	clock *clock.SimClock

	ids     idgen.Generator
	seq     event.Sequencer
	metrics *obs.Metrics

	strategyLoop *bus.Loop
	riskLoop     *bus.Loop
	routingLoop  *bus.Loop

	md        *gateway.MarketData
	ipcWorker *ipc.Worker

	mu      sync.Mutex
	running bool
	bridges []subscription

	// compMu guards the component pointers only. It is never held across
	// a blocking call, so the IPC goroutine may read components while
	// Stop waits for it.
	compMu  sync.RWMutex
	strat   *strategy.Threshold
	tracker *og.Tracker
	posEng  *state.Engine
	riskEng *risk.Engine
	sim     *exec.Simulator
}

// New creates a stopped engine bound to the given simulation clock. The
// clock must outlive the engine; the market data worker writes it.
func New(cfg ops.Config, clk *clock.SimClock) *Engine {
	e := &Engine{
		cfg:          cfg,
		clock:        clk,
		metrics:      obs.NewMetrics(),
		strategyLoop: bus.NewLoop("strategy"),
		riskLoop:     bus.NewLoop("risk"),
		routingLoop:  bus.NewLoop("order_routing"),
	}

	if cfg.MarketDataAddr != "" {
		e.md = gateway.NewMarketData(cfg.MarketDataAddr, clk, &e.seq, e.PushEvent)
	}
	if cfg.CommandAddr != "" || cfg.TelemetryAddr != "" {
		e.ipcWorker = ipc.NewWorker(cfg.CommandAddr, cfg.TelemetryAddr, e.ExecuteCommand)
	}

	return e
}

// StrategyBus returns the strategy loop bus for external subscribers.
func (e *Engine) StrategyBus() *bus.Bus { return e.strategyLoop.Bus() }

// RiskBus returns the risk loop bus for external subscribers.
func (e *Engine) RiskBus() *bus.Bus { return e.riskLoop.Bus() }

// PushMarketData enqueues a tick into the strategy loop from any
// goroutine. Test harness entry point; in production the market data
// worker feeds PushEvent.
func (e *Engine) PushMarketData(md event.MarketData) {
	e.strategyLoop.Push(md)
}

// PushEvent enqueues a generic event into the strategy loop. This is the
// sink bound to the market data worker.
func (e *Engine) PushEvent(ev event.Event) {
	e.strategyLoop.Push(ev)
}

// Start brings the engine to a running state. When rec is non-nil the
// warm-up gate runs first: positions then open orders are hydrated on the
// calling goroutine before any loop is scheduled. Idempotent.
func (e *Engine) Start(rec reconcile.Reconciler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	// 1) Stateful components subscribe while the risk loop is not yet
	// scheduled. The tracker must be the first Order subscriber so its
	// insertion is observable downstream; the position engine's order
	// cache must be warm before any fill for the same order arrives.
	tracker := og.NewTracker(e.riskLoop.Bus())
	posEng := state.NewEngine(e.riskLoop.Bus(), e.cfg.Risk)
	e.setComponents(nil, tracker, posEng, nil, nil)

	// 2) Warm-up gate: single-threaded hydration, positions first.
	if rec != nil {
		positions, err := rec.ReconcilePositions()
		if err != nil {
			e.teardownComponents()
			return errors.Wrap(err, "reconcile positions")
		}
		for _, pos := range positions {
			posEng.HydratePosition(pos)
		}

		orders, err := rec.ReconcileOrders()
		if err != nil {
			e.teardownComponents()
			return errors.Wrap(err, "reconcile orders")
		}
		for _, o := range orders {
			tracker.HydrateOrder(o)
		}
		logs.Infof("warm-up complete: %d positions, %d open orders", len(positions), len(orders))
	}

	// 3) Core loops.
	e.strategyLoop.Start()
	e.riskLoop.Start()

	// 4) Cross-loop bridges. Each runs on the publishing loop's
	// goroutine and only enqueues into the destination inbox.
	bridge(e, e.strategyLoop.Bus(), func(s event.Signal) { e.riskLoop.Push(s) })
	bridge(e, e.riskLoop.Bus(), func(o event.Order) { e.routingLoop.Push(o) })
	bridge(e, e.routingLoop.Bus(), func(r event.ExecutionReport) { e.riskLoop.Push(r) })
	if e.ipcWorker != nil {
		bridge(e, e.riskLoop.Bus(), func(u event.OrderUpdate) { e.ipcWorker.PushTelemetry(u) })
		bridge(e, e.riskLoop.Bus(), func(u event.PositionUpdate) { e.ipcWorker.PushTelemetry(u) })
		bridge(e, e.riskLoop.Bus(), func(v event.RiskViolation) { e.ipcWorker.PushTelemetry(v) })
	}
	e.observe(e.strategyLoop.Bus())
	e.observe(e.riskLoop.Bus())
	e.observe(e.routingLoop.Bus())

	// 5) Routing loop and its execution engine.
	sim := exec.NewSimulator(e.routingLoop.Bus(), e.clock)
	e.routingLoop.Start()

	// 6) Remaining logic components.
	strat := strategy.NewThreshold(e.strategyLoop.Bus(), e.cfg.Strategy.ID, e.cfg.Strategy.PriceThreshold)
	riskEng := risk.NewEngine(e.riskLoop.Bus(), e.cfg.Risk, &e.ids, posEng)
	e.setComponents(strat, tracker, posEng, riskEng, sim)

	// 7) IPC worker.
	if e.ipcWorker != nil {
		if err := e.ipcWorker.Start(); err != nil {
			e.stopLocked()
			return err
		}
	}

	// 8) Market data last, so every subscriber is live before the first
	// tick enters the pipeline.
	if e.md != nil {
		if err := e.md.Start(); err != nil {
			e.stopLocked()
			return err
		}
	}

	e.running = true
	logs.Info("trading engine started")
	return nil
}

// Stop shuts everything down in reverse order and reports the first loop
// failure (a handler panic). Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	// 1) No new ticks.
	if e.md != nil {
		e.md.Stop()
	}

	// 2) IPC joins before the components it reads are torn down.
	if e.ipcWorker != nil {
		e.ipcWorker.Stop()
	}

	// 3) Logic components detach so handlers stop firing; bridges unwire.
	e.teardownComponents()
	for _, s := range e.bridges {
		s.bus.Unsubscribe(s.id)
	}
	e.bridges = nil

	// 4) Loops join; leftover inbox events are discarded.
	var firstErr error
	if err := e.routingLoop.Stop(); err != nil {
		firstErr = err
	}
	if err := e.strategyLoop.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.riskLoop.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	e.running = false

	snapshot := e.metrics.Snapshot()
	logs.Infof("trading engine stopped, events=%v violations=%d",
		snapshot.EventCounts, snapshot.Violations)
	return firstErr
}

func (e *Engine) setComponents(strat *strategy.Threshold, tracker *og.Tracker, posEng *state.Engine, riskEng *risk.Engine, sim *exec.Simulator) {
	e.compMu.Lock()
	defer e.compMu.Unlock()
	e.strat = strat
	e.tracker = tracker
	e.posEng = posEng
	e.riskEng = riskEng
	e.sim = sim
}

func (e *Engine) teardownComponents() {
	e.compMu.Lock()
	strat, tracker, posEng, riskEng, sim := e.strat, e.tracker, e.posEng, e.riskEng, e.sim
	e.strat, e.tracker, e.posEng, e.riskEng, e.sim = nil, nil, nil, nil, nil
	e.compMu.Unlock()

	if riskEng != nil {
		riskEng.Close()
	}
	if posEng != nil {
		posEng.Close()
	}
	if tracker != nil {
		tracker.Close()
	}
	if strat != nil {
		strat.Close()
	}
	if sim != nil {
		sim.Close()
	}
}

func bridge[T event.Event](e *Engine, b *bus.Bus, fn func(T)) {
	e.bridges = append(e.bridges, subscription{bus: b, id: bus.On(b, fn)})
}

func (e *Engine) observe(b *bus.Bus) {
	id := b.Subscribe(func(ev event.Event) { e.metrics.ObserveEvent(ev.Kind()) })
	e.bridges = append(e.bridges, subscription{bus: b, id: id})
}

// ExecuteCommand processes an operator command and returns a JSON
// response. Runs on the IPC goroutine; all reads it performs are
// thread-safe.
func (e *Engine) ExecuteCommand(cmd string) string {
	switch strings.TrimSpace(cmd) {
	case "PING":
		return mustJSON(map[string]any{"status": "ok", "response": "PONG"})

	case "STATUS":
		type positionStatus struct {
			Symbol       string  `json:"symbol"`
			NetQuantity  float64 `json:"net_quantity"`
			AveragePrice float64 `json:"average_price"`
			RealizedPnL  float64 `json:"realized_pnl"`
		}

		e.compMu.RLock()
		riskEng, posEng := e.riskEng, e.posEng
		e.compMu.RUnlock()

		halted := false
		if riskEng != nil {
			halted = riskEng.IsHalted()
		}
		positions := []positionStatus{}
		if posEng != nil {
			for _, pos := range posEng.Snapshots() {
				positions = append(positions, positionStatus{
					Symbol:       pos.Symbol,
					NetQuantity:  pos.NetQuantity,
					AveragePrice: pos.AveragePrice,
					RealizedPnL:  pos.RealizedPnL,
				})
			}
		}
		return mustJSON(map[string]any{"status": "ok", "halted": halted, "positions": positions})

	case "HALT":
		e.compMu.RLock()
		riskEng := e.riskEng
		e.compMu.RUnlock()
		if riskEng != nil {
			riskEng.HaltTrading()
		}
		return mustJSON(map[string]any{"status": "ok", "response": "Trading halted"})

	default:
		return mustJSON(map[string]any{"status": "error", "response": "Unknown command: " + cmd})
	}
}

func mustJSON(record map[string]any) string {
	data, err := json.Marshal(record)
	if err != nil {
		logs.Errorf("command response marshal: %+v", err)
		return `{"status":"error","response":"internal error"}`
	}
	return string(data)
}
