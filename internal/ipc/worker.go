package ipc

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/event"
)

const cmdPollTimeout = 50 * time.Millisecond

// CommandHandler turns an operator command string into a response string.
type CommandHandler func(cmd string) string

type cmdRequest struct {
	cmd   string
	reply chan string
}

// Worker is the remote-control surface: a telemetry inbox drained onto a
// websocket broadcast hub, and a command endpoint whose requests are
// serialized through the worker goroutine — one in flight, handled on the
// IPC goroutine like a reply socket.
type Worker struct {
	cmdAddr string
	pubAddr string
	handler CommandHandler

	telemetry *bus.Inbox
	hub       *Hub
	requests  chan cmdRequest

	running   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	cmdServer *http.Server
	pubServer *http.Server
	cmdBound  string
	pubBound  string
	startOnce sync.Mutex
}

// NewWorker creates a stopped worker. Empty addresses disable the
// corresponding endpoint.
func NewWorker(cmdAddr, pubAddr string, handler CommandHandler) *Worker {
	return &Worker{
		cmdAddr:   cmdAddr,
		pubAddr:   pubAddr,
		handler:   handler,
		telemetry: bus.NewInbox(),
		hub:       NewHub(),
		requests:  make(chan cmdRequest),
	}
}

// PushTelemetry enqueues an event for broadcast. Callable from any
// goroutine; never blocks.
func (w *Worker) PushTelemetry(e event.Event) {
	w.telemetry.Push(e)
}

// Start opens the endpoints and spawns the worker goroutine. Idempotent.
func (w *Worker) Start() error {
	w.startOnce.Lock()
	defer w.startOnce.Unlock()
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}

	if w.cmdAddr != "" {
		ln, err := net.Listen("tcp", w.cmdAddr)
		if err != nil {
			w.running.Store(false)
			return errors.Wrap(err, "listen command endpoint")
		}
		w.cmdBound = ln.Addr().String()
		r := chi.NewRouter()
		r.Post("/command", w.handleCommand)
		w.cmdServer = &http.Server{Handler: r}
		go func() {
			if err := w.cmdServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				logs.Errorf("command server: %+v", err)
			}
		}()
	}

	if w.pubAddr != "" {
		ln, err := net.Listen("tcp", w.pubAddr)
		if err != nil {
			w.shutdownServers()
			w.running.Store(false)
			return errors.Wrap(err, "listen telemetry endpoint")
		}
		w.pubBound = ln.Addr().String()
		mux := http.NewServeMux()
		mux.HandleFunc("/telemetry", w.hub.Handle)
		w.pubServer = &http.Server{Handler: mux}
		go func() {
			if err := w.pubServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				logs.Errorf("telemetry server: %+v", err)
			}
		}()
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.stop, w.done)

	logs.Infof("ipc worker started, cmd=%s pub=%s", w.cmdBound, w.pubBound)
	return nil
}

// CmdAddr returns the bound command address after Start.
func (w *Worker) CmdAddr() string { return w.cmdBound }

// PubAddr returns the bound telemetry address after Start.
func (w *Worker) PubAddr() string { return w.pubBound }

// Stop signals the worker, joins it, and closes the endpoints.
// Idempotent.
func (w *Worker) Stop() {
	w.startOnce.Lock()
	defer w.startOnce.Unlock()
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	close(w.stop)
	<-w.done

	w.shutdownServers()
	w.hub.CloseAll()
	logs.Info("ipc worker stopped")
}

func (w *Worker) shutdownServers() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if w.cmdServer != nil {
		w.cmdServer.Shutdown(ctx)
		w.cmdServer = nil
	}
	if w.pubServer != nil {
		w.pubServer.Shutdown(ctx)
		w.pubServer = nil
	}
}

// run drains telemetry and answers commands until stopped, then drains
// telemetry one last time.
func (w *Worker) run(stop, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(cmdPollTimeout)
	defer timer.Stop()

	for {
		w.drainTelemetry()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(cmdPollTimeout)

		select {
		case <-stop:
			w.drainTelemetry()
			return
		case req := <-w.requests:
			req.reply <- w.handler(req.cmd)
		case <-timer.C:
		}
	}
}

func (w *Worker) drainTelemetry() {
	for {
		e, ok := w.telemetry.TryPop()
		if !ok {
			return
		}
		if msg, ok := formatTelemetry(e); ok {
			w.hub.Broadcast(msg)
		}
	}
}

func (w *Worker) handleCommand(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(rw, "read request", http.StatusBadRequest)
		return
	}

	req := cmdRequest{cmd: string(body), reply: make(chan string, 1)}
	select {
	case w.requests <- req:
	case <-r.Context().Done():
		return
	}

	select {
	case resp := <-req.reply:
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(resp))
	case <-r.Context().Done():
	}
}
