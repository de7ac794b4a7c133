package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
)

// Order feed event types
const (
	EventOrderCreated        = "order.created"
	EventOrderStatusUpdated  = "order.status_updated"
	EventOrderPaymentUpdated = "order.payment_updated"
	eventConnected           = "connected"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// FeedMessage represents a message sent over the admin order feed
type FeedMessage struct {
	Type      string        `json:"type"`
	Order     *models.Order `json:"order,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type feedClient struct {
	userID string
	conn   *websocket.Conn
	send   chan FeedMessage
	feed   *OrderFeed
}

// OrderFeed maintains the connected admin clients and broadcasts order events to them
type OrderFeed struct {
	clients    map[*feedClient]bool
	broadcast  chan FeedMessage
	register   chan *feedClient
	unregister chan *feedClient
	done       chan struct{}
	mutex      sync.RWMutex

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewOrderFeed creates an order feed. Call Run to start delivering events.
func NewOrderFeed(allowedOrigins []string, allowAllOrigins bool, logger *zap.Logger) *OrderFeed {
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &OrderFeed{
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan FeedMessage, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAllOrigins || origin == "" || origins[origin]
			},
		},
	}
}

// Run delivers events until ctx is cancelled, then disconnects every client
func (h *OrderFeed) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

			h.deliver(client, FeedMessage{Type: eventConnected, Message: "Connected to order feed", Timestamp: time.Now().UTC()})

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mutex.RLock()
			clients := make([]*feedClient, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mutex.RUnlock()

			for _, client := range clients {
				h.deliver(client, message)
			}
		}
	}
}

// deliver drops clients whose send buffer is full
func (h *OrderFeed) deliver(client *feedClient, message FeedMessage) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("dropping slow order feed client", zap.String("user_id", client.userID))
		h.remove(client)
	}
}

func (h *OrderFeed) remove(client *feedClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount returns the number of connected clients
func (h *OrderFeed) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// PublishOrderEvent queues an order event for every connected client without blocking
func (h *OrderFeed) PublishOrderEvent(eventType string, order *models.Order) {
	message := FeedMessage{Type: eventType, Order: order, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("order feed buffer full, event dropped", zap.String("type", eventType))
	}
}

// HandleWebSocket upgrades an authenticated admin request to a feed connection
func (h *OrderFeed) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Authentication required",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &feedClient{
		userID: userID,
		conn:   conn,
		send:   make(chan FeedMessage, sendBufferSize),
		feed:   h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only consumes control frames; admins never send data on the feed
func (c *feedClient) readPump() {
	defer func() {
		select {
		case c.feed.unregister <- c:
		case <-c.feed.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.feed.logger.Debug("order feed read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *feedClient) writePump() {
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
			if err := c.conn.WriteJSON(message); err != nil {
				c.feed.logger.Debug("order feed write error", zap.Error(err))
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
