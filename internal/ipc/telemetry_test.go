package ipc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"main/internal/domain"
	"main/internal/event"
)

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	return record
}

func TestFormatOrderUpdate(t *testing.T) {
	msg, ok := formatTelemetry(event.OrderUpdate{
		Order: domain.Order{
			ID:        1,
			Symbol:    "AAPL",
			Side:      domain.SideBuy,
			Quantity:  1,
			Price:     150.25,
			Status:    domain.OrderStatusFilled,
			FilledQty: 1,
		},
		PreviousStatus: domain.OrderStatusAccepted,
	})
	require.True(t, ok)

	record := decode(t, msg)
	require.Equal(t, "order_update", record["type"])
	require.Equal(t, float64(1), record["order_id"])
	require.Equal(t, "AAPL", record["symbol"])
	require.Equal(t, "buy", record["side"])
	require.Equal(t, "filled", record["status"])
	require.Equal(t, "accepted", record["previous_status"])
	require.Equal(t, 150.25, record["price"])
}

func TestFormatPositionUpdate(t *testing.T) {
	msg, ok := formatTelemetry(event.PositionUpdate{
		Position: domain.Position{
			Symbol:       "AAPL",
			NetQuantity:  2,
			AveragePrice: 105,
			RealizedPnL:  30,
		},
	})
	require.True(t, ok)

	record := decode(t, msg)
	require.Equal(t, "position_update", record["type"])
	require.Equal(t, "AAPL", record["symbol"])
	require.Equal(t, float64(2), record["net_quantity"])
	require.Equal(t, float64(105), record["average_price"])
	require.Equal(t, float64(30), record["realized_pnl"])
}

func TestFormatRiskViolation(t *testing.T) {
	msg, ok := formatTelemetry(event.RiskViolation{
		Symbol:       "AAPL",
		Reason:       "Max Drawdown Exceeded",
		CurrentValue: -20,
		LimitValue:   -10,
	})
	require.True(t, ok)

	record := decode(t, msg)
	require.Equal(t, "risk_violation", record["type"])
	require.Equal(t, "Max Drawdown Exceeded", record["reason"])
	require.Equal(t, float64(-20), record["current_value"])
	require.Equal(t, float64(-10), record["limit_value"])
}

func TestOtherKindsNotEmitted(t *testing.T) {
	_, ok := formatTelemetry(event.MarketData{Symbol: "AAPL"})
	require.False(t, ok)
	_, ok = formatTelemetry(event.Signal{Symbol: "AAPL"})
	require.False(t, ok)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The client registers asynchronously with the dial; retry the
	// broadcast until it lands.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast([]byte(`{"type":"position_update"}`))
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	_, msg, err := conn.ReadMessage()
	close(stop)
	require.NoError(t, err)
	require.Contains(t, string(msg), "position_update")
}
