package dashboard

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return env
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	h := NewHub()
	conn, cleanup := dialHub(t, h)
	defer cleanup()

	waitForClients(t, h, 1)

	h.Broadcast("daily", []model.Signal{
		{Timeframe: "daily", Symbol: "RELIANCE", Config: "ST_daily_sma5", Close: 2900, Supertrend: 2850, Direction: 1},
	})

	env := readEnvelope(t, conn)
	if env.Type != "signals" || env.Timeframe != "daily" {
		t.Errorf("envelope = %+v", env)
	}
	if len(env.Signals) != 1 || env.Signals[0].Symbol != "RELIANCE" {
		t.Errorf("signals = %+v", env.Signals)
	}
}

func TestHub_NewClientGetsLatestState(t *testing.T) {
	h := NewHub()
	h.Broadcast("125min", []model.Signal{{Timeframe: "125min", Symbol: "TCS", Config: "ST_125m_hl2"}})
	h.Broadcast("daily", []model.Signal{{Timeframe: "daily", Symbol: "TCS", Config: "ST_daily_hl2_20"}})

	conn, cleanup := dialHub(t, h)
	defer cleanup()

	// Initial state is sent in sorted timeframe order.
	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)
	if first.Timeframe != "125min" || second.Timeframe != "daily" {
		t.Errorf("timeframes = %q, %q", first.Timeframe, second.Timeframe)
	}
}

func TestHub_ClientCountTracksDisconnect(t *testing.T) {
	h := NewHub()
	conn, cleanup := dialHub(t, h)

	waitForClients(t, h, 1)

	conn.Close()
	cleanup()
	waitForClients(t, h, 0)
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
}
