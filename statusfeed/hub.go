// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statusfeed

import (
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ttbt-io/reloadsnipe/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types for WebSocket communication
const (
	MsgTypeStatus = "STATUS"
	MsgTypeStop   = "STOP"
	MsgTypeAck    = "ACK"
	MsgTypePing   = "PING"
	MsgTypePong   = "PONG"
	MsgTypeError  = "ERROR"
)

// Message is sent in both directions on the status socket. Panels only send
// PING and STOP.
type Message struct {
	Type    string         `json:"type"`
	Status  *engine.Status `json:"status,omitempty"`
	Latency *Latency       `json:"latency,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Latency summarizes reload round trips.
type Latency struct {
	Count     uint64           `json:"count"`
	MeanMs    int64            `json:"meanMs"`
	P50Ms     int64            `json:"p50Ms"`
	P90Ms     int64            `json:"p90Ms"`
	Histogram engine.Histogram `json:"histogram"`
}

func summarize(h engine.Histogram) *Latency {
	return &Latency{
		Count:     h.Count,
		MeanMs:    h.Mean().Milliseconds(),
		P50Ms:     h.Quantile(0.5).Milliseconds(),
		P90Ms:     h.Quantile(0.9).Milliseconds(),
		Histogram: h,
	}
}

// Hub broadcasts engine status to connected panels. It implements
// engine.Reporter.
type Hub struct {
	// Registered clients.
	clients map[*wsClient]bool

	register   chan *wsClient
	unregister chan *wsClient
	updates    chan engine.Status
	done       chan struct{}
	closeOnce  sync.Once

	latency *engine.LatencyTracker
	onStop  func()

	mu   sync.Mutex
	last *engine.Status
}

// NewHub starts a hub. latency and onStop may be nil; without onStop, STOP
// requests are refused.
func NewHub(latency *engine.LatencyTracker, onStop func()) *Hub {
	h := &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		updates:    make(chan engine.Status, 64),
		done:       make(chan struct{}),
		latency:    latency,
		onStop:     onStop,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			client.sendJSON(h.snapshot())
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case s := <-h.updates:
			msg := Message{Type: MsgTypeStatus, Status: &s, Latency: h.latencySummary()}
			for client := range h.clients {
				client.sendJSON(msg)
			}
		case <-h.done:
			return
		}
	}
}

// Report records s as the latest status and queues it for broadcast. It never
// blocks; when panels fall behind, intermediate updates are dropped.
func (h *Hub) Report(s engine.Status) {
	h.mu.Lock()
	h.last = &s
	h.mu.Unlock()

	select {
	case h.updates <- s:
	default:
		log.Printf("Warning: status hub busy, dropping update %q", s.Message)
	}
}

// Close stops the hub and disconnects all clients.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) snapshot() Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := Message{Type: MsgTypeStatus, Latency: h.latencySummary()}
	if h.last != nil {
		s := *h.last
		msg.Status = &s
	}
	return msg
}

func (h *Hub) latencySummary() *Latency {
	if h.latency == nil {
		return nil
	}
	return summarize(h.latency.Snapshot())
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}
	client := &wsClient{hub: h, conn: conn, send: make(chan Message, 16)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan Message
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			c.sendJSON(Message{Type: MsgTypePong})
		case MsgTypeStop:
			if c.hub.onStop == nil {
				c.sendJSON(Message{Type: MsgTypeError, Error: "Stop is not available"})
				continue
			}
			go c.hub.onStop()
			c.sendJSON(Message{Type: MsgTypeAck})
		default:
			log.Printf("Unknown message type: %s", msg.Type)
			c.sendJSON(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-c.hub.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) sendJSON(msg Message) {
	select {
	case c.send <- msg:
	default:
		// The client is not keeping up; it will catch up on the next update.
	}
}
