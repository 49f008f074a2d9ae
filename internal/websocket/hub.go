package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/events"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

const (
	// Maximum message size allowed from peer
	maxMessageSize = 512
	sendBuffer     = 256
	broadcastQueue = 1024
)

type envelope struct {
	entity string
	id     string
	msg    Message
}

// Hub fans scan and monitor events out to websocket clients
type Hub struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *logger.Logger

	mu    sync.RWMutex
	stats HubStats
}

// NewHub creates a hub. Zero timeouts take the gorilla chat example defaults.
func NewHub(cfg config.WebSocketConfig, log *logger.Logger) *Hub {
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = cfg.PongTimeout * 9 / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1024
	}

	h := &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, broadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.WithComponent("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run handles registration and broadcasting until ctx ends, then closes every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.broadcastMessage(env)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	h.stats.LastConnectionTime = time.Now()
	active := h.stats.ActiveConnections
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int64("active_connections", active),
	)

	client.enqueue(Message{
		Type:      TypeConnected,
		Data:      map[string]string{"client_id": client.ID},
		Timestamp: time.Now(),
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		h.dropLocked(client)
		h.stats.LastDisconnectTime = time.Now()
	}
	active := h.stats.ActiveConnections
	h.mu.Unlock()

	if ok {
		h.logger.Info("Client disconnected",
			zap.String("client_id", client.ID),
			zap.String("client_ip", client.IP),
			zap.Int64("active_connections", active),
		)
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	client.close()
	h.stats.ActiveConnections--
}

func (h *Hub) broadcastMessage(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()

	for client := range h.clients {
		if !client.wants(env.entity, env.id) {
			continue
		}
		if client.enqueue(env.msg) {
			h.stats.TotalMessages++
			continue
		}
		h.logger.Warn("Client send channel full, closing connection", zap.String("client_id", client.ID))
		h.dropLocked(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.dropLocked(client)
	}
}

// Forward implements events.Forwarder. It never blocks the event writer.
func (h *Hub) Forward(entity, id string, ev events.Event) {
	env := envelope{
		entity: entity,
		id:     id,
		msg: Message{
			Type:      TypeEvent,
			Entity:    entity,
			ID:        id,
			Event:     &ev,
			Timestamp: ev.Timestamp,
		},
	}
	select {
	case h.broadcast <- env:
	default:
		h.mu.Lock()
		h.stats.Dropped++
		h.mu.Unlock()
		h.logger.Warn("Broadcast queue full, dropping event",
			zap.String("entity", entity),
			zap.String("id", id),
			zap.String("event_type", ev.Type),
		)
	}
}

// ServeHTTP upgrades the connection and starts the client pumps
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxConnections > 0 && h.Len() >= h.cfg.MaxConnections {
		h.mu.Lock()
		h.stats.Rejected++
		h.mu.Unlock()
		http.Error(w, "too many websocket connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := newClient("client_"+strings.ReplaceAll(uuid.NewString(), "-", "")[:8], conn, sendBuffer)
	client.IP = ClientIP(r)
	client.UserAgent = r.UserAgent()

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		var msg ClientMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}
		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	reply := Message{Entity: msg.Entity, ID: msg.ID, Timestamp: time.Now()}
	switch msg.Type {
	case "subscribe", "unsubscribe":
		if msg.Entity != "scan" && msg.Entity != "monitor" {
			reply.Type = TypeError
			reply.Data = map[string]string{"message": "entity must be scan or monitor"}
			break
		}
		if msg.Type == "subscribe" {
			client.subscribe(msg.Entity, msg.ID)
			reply.Type = TypeSubscribed
		} else {
			client.unsubscribe(msg.Entity, msg.ID)
			reply.Type = TypeUnsubscribed
		}
		h.logger.Debug("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.String("action", msg.Type),
			zap.String("entity", msg.Entity),
			zap.String("id", msg.ID),
		)
	case "ping":
		reply.Type = TypePong
	default:
		reply.Type = TypeError
		reply.Data = map[string]string{"message": "unknown message type " + msg.Type}
	}
	client.enqueue(reply)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns current hub statistics
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// ClientIP extracts the client address, preferring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
