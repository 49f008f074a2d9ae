package websocket

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/piiwatch/internal/events"
)

// Message types sent to clients
const (
	TypeEvent        = "event"
	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message is the envelope written to every client
type Message struct {
	Type      string        `json:"type"`
	Entity    string        `json:"entity,omitempty"`
	ID        string        `json:"id,omitempty"`
	Event     *events.Event `json:"event,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ClientMessage is what clients send: subscribe, unsubscribe or ping.
// An empty ID subscribes to every scan or monitor of that entity kind.
type ClientMessage struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

// HubStats tracks websocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	Rejected           int64     `json:"rejected"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	Dropped            int64     `json:"dropped"`
	LastConnectionTime time.Time `json:"last_connection_time,omitzero"`
	LastDisconnectTime time.Time `json:"last_disconnect_time,omitzero"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time,omitzero"`
}

// Client is one websocket connection. Without subscriptions it receives every event.
type Client struct {
	ID          string
	IP          string
	UserAgent   string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan Message

	mu     sync.Mutex
	closed bool
	subs   map[string]bool
}

func newClient(id string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan Message, buffer),
		subs:        make(map[string]bool),
	}
}

func subKey(entity, id string) string {
	return strings.ToLower(entity) + "/" + id
}

func (c *Client) subscribe(entity, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subKey(entity, id)] = true
}

func (c *Client) unsubscribe(entity, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, subKey(entity, id))
}

// wants reports whether the client is subscribed to the entity's events
func (c *Client) wants(entity, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	return c.subs[subKey(entity, "")] || c.subs[subKey(entity, id)]
}

// enqueue queues msg without blocking. It fails when the buffer is full or the client is closed.
func (c *Client) enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
