package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leobar37/leobit2-sub001/internal/logging"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
	"github.com/leobar37/leobit2-sub001/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only allow browser pages served from localhost
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	},
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	mu            sync.RWMutex
	subscriptions map[string]bool
}

// wants reports whether the client should receive eventType. A client
// with no subscriptions receives everything.
func (c *WSClient) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[eventType]
}

// WSHub maintains active client connections and broadcasts messages.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan wsMessage
	unregister chan *WSClient
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex

	log *logging.Logger
}

type wsMessage struct {
	eventType string
	payload   []byte
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// =====================================================
// WebSocket Event Types
// =====================================================

const (
	EventSyncState     = "sync.state"
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
	EventSyncOffline   = "sync.offline"
)

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan wsMessage, 256),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
		log:        logging.Named("ws"),
	}
	go hub.run()
	return hub
}

// run manages client connections and broadcasts.
func (h *WSHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Client disconnected", map[string]interface{}{"client_id": client.id, "total": total})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(msg.eventType) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Client send buffer is full, close connection
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// add registers client. It returns false once the hub is closed.
func (h *WSHub) add(client *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[client.id] = client
	h.log.Debug("Client connected", map[string]interface{}{"client_id": client.id, "total": len(h.clients)})
	return true
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the hub.
func (h *WSHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast sends a message to all subscribed clients. Messages are dropped
// once the hub is closed or its buffer is full.
func (h *WSHub) Broadcast(messageType string, data interface{}) {
	envelope := WSEnvelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		h.log.Warn("Failed to marshal message", map[string]interface{}{"error": err.Error()})
		return
	}

	select {
	case h.broadcast <- wsMessage{eventType: messageType, payload: bytes}:
	case <-h.done:
	default:
		h.log.Warn("Broadcast buffer full, dropping message", map[string]interface{}{"type": messageType})
	}
}

// =====================================================
// Sync Event Broadcasters
// =====================================================

// WatchEngine streams engine state to clients and derives lifecycle events
// from status transitions. It returns the unsubscribe func.
func (h *WSHub) WatchEngine(engine syncpkg.SyncEngineInterface) func() {
	var prev syncpkg.SyncStatus
	return engine.Subscribe(func(s syncpkg.State) {
		h.Broadcast(EventSyncState, s)

		if s.Status == prev {
			return
		}
		switch s.Status {
		case syncpkg.SyncStatusSyncing:
			h.Broadcast(EventSyncStarted, map[string]interface{}{
				"pending": s.PendingCount,
			})
		case syncpkg.SyncStatusIdle:
			if prev == syncpkg.SyncStatusSyncing {
				h.Broadcast(EventSyncCompleted, map[string]interface{}{
					"pending":      s.PendingCount,
					"last_sync_at": s.LastSyncAt,
				})
			}
		case syncpkg.SyncStatusError:
			h.Broadcast(EventSyncFailed, map[string]interface{}{
				"error":   s.LastError,
				"pending": s.PendingCount,
			})
		case syncpkg.SyncStatusOffline:
			h.Broadcast(EventSyncOffline, map[string]interface{}{
				"pending": s.PendingCount,
			})
		}
		prev = s.Status
	})
}

// readPump pumps messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("Read error", map[string]interface{}{"error": err.Error()})
			}
			break
		}

		// Handle client messages
		var msg struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug("Invalid message format", map[string]interface{}{"error": err.Error()})
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})

		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()

		case "ping":
			c.reply(map[string]interface{}{"action": "pong"})
		}
	}
}

// writePump pumps messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a direct response to this client. It is dropped if the
// client is already gone or its buffer is full.
func (c *WSClient) reply(envelope map[string]interface{}) {
	envelope["timestamp"] = time.Now().Unix()
	bytes, _ := json.Marshal(envelope)

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- bytes:
	default:
	}
}

// HandleWebSocket handles WebSocket connections. New clients receive the
// current engine state right away.
func HandleWebSocket(hub *WSHub, engine syncpkg.SyncEngineInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("Failed to upgrade", map[string]interface{}{"error": err.Error()})
			return
		}

		client := &WSClient{
			id:            uuid.New(),
			conn:          conn,
			send:          make(chan []byte, 256),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}

		// Queued before registration so it is the first message
		if engine != nil {
			if bytes, err := json.Marshal(WSEnvelope{
				Type:      EventSyncState,
				Data:      engine.State(),
				Timestamp: time.Now().Unix(),
			}); err == nil {
				client.send <- bytes
			}
		}

		if !hub.add(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
