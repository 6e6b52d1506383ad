package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUnknownConnection = errors.New("ws: unknown connection")
	ErrSendBufferFull    = errors.New("ws: send buffer full")
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame encodes an outgoing envelope.
func Frame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Client is one websocket connection. ID is the connection handle used by the
// presence store.
type Client struct {
	ID       string
	UserID   string
	Username string
	Send     chan []byte
	hub      *Hub
	mu       sync.Mutex
	closed   bool
}

func NewClient(userID, username string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Send:     make(chan []byte, buffer),
	}
}

// Close unregisters the client and closes Send. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.hub != nil {
		c.hub.unregister(c)
	}
	close(c.Send)
}

// deliver queues data without blocking.
func (c *Client) deliver(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrUnknownConnection
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Relay forwards frames for connections held by other server instances.
type Relay interface {
	Publish(connectionID string, frame []byte) error
}

// Hub holds the clients connected to this instance, keyed by connection id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	relay   Relay
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// SetRelay routes frames for unknown connections through r.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	h.clients[c.ID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.ID] == c {
		delete(h.clients, c.ID)
	}
}

func (h *Hub) Client(connectionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connectionID]
}

// Emit sends one event to one connection. Connections held elsewhere go through
// the relay when one is set.
func (h *Hub) Emit(connectionID, event string, payload any) error {
	frame, err := Frame(event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	c := h.clients[connectionID]
	relay := h.relay
	h.mu.RUnlock()

	if c != nil {
		return c.deliver(frame)
	}
	if relay != nil {
		return relay.Publish(connectionID, frame)
	}
	return ErrUnknownConnection
}

// DeliverLocal hands a pre-encoded frame to a local connection. It reports
// false when the connection is not held here.
func (h *Hub) DeliverLocal(connectionID string, frame []byte) bool {
	c := h.Client(connectionID)
	if c == nil {
		return false
	}
	_ = c.deliver(frame)
	return true
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
