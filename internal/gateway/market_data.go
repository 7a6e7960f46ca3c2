package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/clock"
	"main/internal/event"
)

// Sink receives each decoded tick; the engine binds it to the strategy
// loop inbox.
type Sink func(event.Event)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MarketData is the inbound tick worker: a websocket endpoint that feeders
// connect to. Each frame is a JSON tick; on every successful decode the
// simulation clock advances to the tick's timestamp before the event is
// pushed, so any component reading the clock while processing the tick
// sees the correct simulated time. Malformed frames are logged and
// skipped.
type MarketData struct {
	addr  string
	clock *clock.SimClock
	seq   *event.Sequencer
	sink  Sink

	running atomic.Bool
	server  *http.Server
	bound   string

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

type tick struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
}

// NewMarketData creates a stopped worker bound to the given listen
// address.
func NewMarketData(addr string, clk *clock.SimClock, seq *event.Sequencer, sink Sink) *MarketData {
	return &MarketData{
		addr:  addr,
		clock: clk,
		seq:   seq,
		sink:  sink,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Start opens the listener and begins accepting feeder connections.
// Idempotent.
func (g *MarketData) Start() error {
	if !g.running.CompareAndSwap(false, true) {
		return nil
	}

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		g.running.Store(false)
		return errors.Wrap(err, "listen market data endpoint")
	}
	g.bound = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleFeed)
	g.server = &http.Server{Handler: mux}

	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logs.Errorf("market data server: %+v", err)
		}
	}()

	logs.Infof("market data worker listening on %s", g.bound)
	return nil
}

// Addr returns the bound listen address after Start.
func (g *MarketData) Addr() string {
	return g.bound
}

// Stop closes all feeder connections and the listener, then joins the read
// loops. Idempotent.
func (g *MarketData) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}

	g.mu.Lock()
	for conn := range g.conns {
		conn.Close()
	}
	g.mu.Unlock()

	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.server.Shutdown(ctx)
	}
	g.wg.Wait()
	logs.Info("market data worker stopped")
}

func (g *MarketData) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Errorf("market data upgrade: %+v", err)
		return
	}

	g.mu.Lock()
	if !g.running.Load() {
		g.mu.Unlock()
		conn.Close()
		return
	}
	g.conns[conn] = struct{}{}
	g.mu.Unlock()

	g.wg.Add(1)
	go g.readLoop(conn)
}

func (g *MarketData) readLoop(conn *websocket.Conn) {
	defer g.wg.Done()
	defer func() {
		g.mu.Lock()
		delete(g.conns, conn)
		g.mu.Unlock()
		conn.Close()
	}()

	for g.running.Load() {
		// Blocking read. Stop() closes the connection, which fails the
		// read and ends the loop; gorilla treats read errors as fatal to
		// the connection, so there is no timeout-and-retry here.
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var t tick
		if err := json.Unmarshal(payload, &t); err != nil {
			logs.Errorf("market data decode: %+v, payload: %s", err, payload)
			continue
		}
		if t.Symbol == "" {
			logs.Errorf("market data decode: missing symbol, payload: %s", payload)
			continue
		}

		// Advance simulated time before the event is visible downstream.
		g.clock.Advance(t.TimestampMs)

		g.sink(event.MarketData{
			Meta:     event.Meta{Seq: g.seq.Next(), TsMs: t.TimestampMs},
			Symbol:   t.Symbol,
			Price:    t.Price,
			Quantity: t.Volume,
		})
	}
}
