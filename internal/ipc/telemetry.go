package ipc

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"main/internal/event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts telemetry frames to every connected websocket client.
// Clients that fail a write are dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub allocates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Handle upgrades an HTTP request and registers the client.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Errorf("telemetry upgrade: %+v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

// Broadcast writes the message to every client.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// formatTelemetry serializes the three published event kinds as
// self-describing JSON records. Other kinds are not emitted.
func formatTelemetry(e event.Event) ([]byte, bool) {
	switch v := e.(type) {
	case event.OrderUpdate:
		return marshal(map[string]any{
			"type":            "order_update",
			"order_id":        v.Order.ID,
			"symbol":          v.Order.Symbol,
			"side":            v.Order.Side.String(),
			"status":          v.Order.Status.String(),
			"previous_status": v.PreviousStatus.String(),
			"quantity":        v.Order.Quantity,
			"filled_quantity": v.Order.FilledQty,
			"price":           v.Order.Price,
		})
	case event.PositionUpdate:
		return marshal(map[string]any{
			"type":          "position_update",
			"symbol":        v.Position.Symbol,
			"net_quantity":  v.Position.NetQuantity,
			"average_price": v.Position.AveragePrice,
			"realized_pnl":  v.Position.RealizedPnL,
		})
	case event.RiskViolation:
		return marshal(map[string]any{
			"type":          "risk_violation",
			"symbol":        v.Symbol,
			"reason":        v.Reason,
			"current_value": v.CurrentValue,
			"limit_value":   v.LimitValue,
		})
	default:
		return nil, false
	}
}

func marshal(record map[string]any) ([]byte, bool) {
	data, err := json.Marshal(record)
	if err != nil {
		logs.Errorf("telemetry marshal: %+v", err)
		return nil, false
	}
	return data, true
}
