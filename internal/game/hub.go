package game

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	HUB_BROADCAST_BUFFER = 100
	WS_WRITE_TIMEOUT     = 10 * time.Second
)

type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// Hub fans settlement events out to websocket subscribers.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan interface{}, HUB_BROADCAST_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.Named("ws"),
	}
}

// Run serves registrations and broadcasts until ctx is done. It must be
// called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", zap.String("user_id", client.userID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", zap.String("user_id", client.userID), zap.Int("total", total))

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Warn("marshal broadcast", zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				go func(c *Client) {
					if err := c.Send(data); err != nil {
						h.log.Debug("write failed", zap.String("user_id", c.userID), zap.Error(err))
					}
				}(client)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast never blocks; when the buffer is full the message is dropped.
func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

func (h *Hub) BroadcastSettlement(msg SettlementMessage) {
	h.Broadcast(WSMessage{Type: "round_settled", Data: msg})
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient subscribes conn to the feed. Direct replies to the
// connection must go through the returned Client so they never interleave
// with broadcasts. Once the hub has stopped the connection is closed instead.
func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{conn: conn, userID: userID}
	select {
	case h.register <- client:
	case <-h.done:
		if conn != nil {
			conn.Close()
		}
	}
	return client
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	var found *Client
	for client := range h.clients {
		if client.conn == conn {
			found = client
			break
		}
	}
	h.mu.RUnlock()

	if found == nil {
		return
	}
	select {
	case h.unregister <- found:
	case <-h.done:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.conn.Close()
		delete(h.clients, client)
	}
}

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(WS_WRITE_TIMEOUT))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
