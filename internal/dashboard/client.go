package dashboard

import (
	"log"
	"sort"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Client is a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// sendInitialState queues the latest envelope for every timeframe so a new
// client sees current data before the next batch lands.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	timeframes := make([]string, 0, len(c.hub.latest))
	for tf := range c.hub.latest {
		timeframes = append(timeframes, tf)
	}
	sort.Strings(timeframes)

	payloads := make([][]byte, 0, len(timeframes))
	for _, tf := range timeframes {
		payloads = append(payloads, c.hub.latest[tf])
	}
	c.hub.mu.RUnlock()

	for _, p := range payloads {
		select {
		case c.send <- p:
		default:
			return
		}
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. Queued messages are coalesced into a single write.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the dashboard is push-only. It exists to
// process pongs and detect closed connections.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		log.Printf("[dashboard] client disconnected (%d remaining)", c.hub.ClientCount())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
