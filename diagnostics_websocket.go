package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ArrEssJay/chimera/modem/pipeline"
)

const (
	// Time allowed to write a message to the peer
	diagWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	diagPongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than diagPongWait)
	diagPingPeriod = (diagPongWait * 9) / 10

	// Per-client outbound queue; slow consumers are dropped when it fills
	diagSendBuffer = 32
)

var diagUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
}

// wsMessage pairs a payload with its WebSocket message type so JSON
// diagnostics and binary PCM share one outbound queue per client.
type wsMessage struct {
	kind int
	data []byte
}

// diagClient is one connected diagnostics consumer
type diagClient struct {
	id   string
	conn *websocket.Conn
	send chan wsMessage
}

// DiagnosticsHub fans per-chunk diagnostics snapshots out to WebSocket
// clients. Publishing never blocks the modem: a client that cannot keep up
// loses its connection, not the pipeline its real-time behavior.
type DiagnosticsHub struct {
	metrics *PrometheusMetrics

	mu      sync.RWMutex
	clients map[string]*diagClient
	last    []byte // most recent snapshot, replayed to new clients
}

// NewDiagnosticsHub creates a hub. metrics may be nil when Prometheus is
// disabled.
func NewDiagnosticsHub(metrics *PrometheusMetrics) *DiagnosticsHub {
	return &DiagnosticsHub{
		metrics: metrics,
		clients: make(map[string]*diagClient),
	}
}

// HandleWebSocket upgrades the request and serves diagnostics until the
// client disconnects.
func (h *DiagnosticsHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := diagUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Diagnostics] WebSocket upgrade failed: %v", err)
		return
	}

	client := &diagClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan wsMessage, diagSendBuffer),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	last := h.last
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	log.Printf("[Diagnostics] Client %s connected (%d active)", client.id, h.ClientCount())

	// New clients immediately get the latest snapshot instead of waiting
	// for the next chunk.
	if last != nil {
		client.send <- wsMessage{kind: websocket.TextMessage, data: last}
	}

	go h.writePump(client)
	go h.readPump(client)
}

// Publish serializes a snapshot and broadcasts it to every client.
func (h *DiagnosticsHub) Publish(d *pipeline.Diagnostics) {
	data, err := json.Marshal(d)
	if err != nil {
		log.Printf("[Diagnostics] Failed to marshal snapshot: %v", err)
		return
	}

	h.mu.Lock()
	h.last = data
	h.mu.Unlock()
	h.broadcast(wsMessage{kind: websocket.TextMessage, data: data})
}

// PublishBinary broadcasts a binary packet (PCM audio) to every client.
func (h *DiagnosticsHub) PublishBinary(data []byte) {
	h.broadcast(wsMessage{kind: websocket.BinaryMessage, data: data})
}

func (h *DiagnosticsHub) broadcast(msg wsMessage) {
	h.mu.Lock()
	var dropped []*diagClient
	for _, client := range h.clients {
		select {
		case client.send <- msg:
			if h.metrics != nil {
				h.metrics.MessageSent()
			}
		default:
			// Queue full: the consumer is too slow, cut it loose
			dropped = append(dropped, client)
		}
	}
	for _, client := range dropped {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.mu.Unlock()

	for _, client := range dropped {
		log.Printf("[Diagnostics] Client %s dropped (send queue full)", client.id)
		if h.metrics != nil {
			h.metrics.ClientDisconnected()
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *DiagnosticsHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *DiagnosticsHub) Close() {
	h.mu.Lock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	h.mu.Unlock()
}

// writePump drains the client's send queue to the wire and keeps the
// connection alive with pings.
func (h *DiagnosticsHub) writePump(client *diagClient) {
	ticker := time.NewTicker(diagPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(diagWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(msg.kind, msg.data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(diagWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages and detects disconnects. Diagnostics
// is a one-way surface; clients have nothing to say.
func (h *DiagnosticsHub) readPump(client *diagClient) {
	defer h.remove(client)
	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(diagPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(diagPongWait))
		return nil
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// remove unregisters a client after its read loop ends.
func (h *DiagnosticsHub) remove(client *diagClient) {
	h.mu.Lock()
	_, present := h.clients[client.id]
	if present {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.mu.Unlock()

	client.conn.Close()
	if present {
		log.Printf("[Diagnostics] Client %s disconnected (%d active)", client.id, h.ClientCount())
		if h.metrics != nil {
			h.metrics.ClientDisconnected()
		}
	}
}
