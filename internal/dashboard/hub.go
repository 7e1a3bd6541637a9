// Package dashboard fans the latest signal rows out to browser clients over
// WebSocket. Each completed batch pushes one envelope per timeframe; newly
// connected clients receive the latest envelope for every timeframe first.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// Envelope is the wire format pushed to dashboard clients.
type Envelope struct {
	Type      string         `json:"type"` // "signals"
	Timeframe string         `json:"timeframe"`
	TS        string         `json:"ts"`
	Signals   []model.Signal `json:"signals"`
}

// Hub manages WebSocket clients and per-timeframe latest state.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string][]byte // timeframe -> last broadcast envelope

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboard is same-host tooling; no cross-origin restrictions.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast stores the latest signals for a timeframe and fans them out to
// every connected client. Slow clients are dropped rather than blocking the
// pipeline.
func (h *Hub) Broadcast(timeframe string, signals []model.Signal) {
	env := Envelope{
		Type:      "signals",
		Timeframe: timeframe,
		TS:        time.Now().Format(time.RFC3339),
		Signals:   signals,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[dashboard] marshal envelope: %v", err)
		return
	}

	h.mu.Lock()
	h.latest[timeframe] = data
	var stale []*Client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if len(stale) > 0 {
		log.Printf("[dashboard] dropped %d slow clients", len(stale))
	}
}

// ServeWS upgrades the connection and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[dashboard] upgrade failed: %v", err)
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.addClient(c)

	go c.writePump()
	go c.readPump()

	c.sendInitialState()
	log.Printf("[dashboard] client connected (%d total)", h.ClientCount())
}

// Handler returns an http.Handler exposing the WebSocket endpoint at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	return mux
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
