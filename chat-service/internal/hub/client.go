package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/config"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/pkg/log"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

type Client struct {
	ID      string
	Session *domain.Session

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	config  config.WebSocketConfig

	mu     sync.Mutex
	closed bool
	// Room frames held back until the room's recent history is sent.
	held map[int][]heldFrame
}

type heldFrame struct {
	messageID int64
	data      []byte
}

// NewClient creates a client for an upgraded connection. conn may be nil for
// clients that are never pumped, such as in tests.
func NewClient(session *domain.Session, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		ID:      session.ID,
		Session: session,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, buffer),
		limiter: limiter,
		config:  cfg,
		held:    make(map[int][]heldFrame),
	}
}

// Outbound exposes the frames queued for the connection.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Allow reports whether the client may send another frame now.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// ReadPump reads frames until the connection fails, passing each to handler.
// onClose receives nil for a normal close and the read error otherwise.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client, error)) {
	var cause error
	defer func() {
		onClose(c, cause)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cause = err
			}
			return
		}

		c.Session.UpdateActivity()
		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues message for this connection only.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// HoldRoom makes room broadcasts wait until SendHistory or ReleaseRoom is
// called for roomID. Call it before joining so no broadcast slips in ahead
// of the history frame.
func (c *Client) HoldRoom(roomID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.held[roomID]; !ok {
		c.held[roomID] = []heldFrame{}
	}
}

// SendHistory queues the LoadRecentMessages frame for roomID and then the
// broadcasts held since HoldRoom, skipping messages the history already
// carries.
func (c *Client) SendHistory(roomID int, history []domain.ChatMessage) error {
	data, err := json.Marshal(domain.NewLoadRecentMessages(history))
	if err != nil {
		c.ReleaseRoom(roomID)
		return err
	}

	seen := make(map[int64]struct{}, len(history))
	for _, msg := range history {
		seen[msg.ID] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	held := c.held[roomID]
	delete(c.held, roomID)

	if !c.enqueueLocked(data) {
		return ErrSendBufferFull
	}
	for _, frame := range held {
		if _, dup := seen[frame.messageID]; dup && frame.messageID != 0 {
			continue
		}
		if !c.enqueueLocked(frame.data) {
			return ErrSendBufferFull
		}
	}
	return nil
}

// ReleaseRoom queues the broadcasts held for roomID without a history frame.
func (c *Client) ReleaseRoom(roomID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held := c.held[roomID]
	delete(c.held, roomID)
	if c.closed {
		return
	}
	for _, frame := range held {
		if !c.enqueueLocked(frame.data) {
			return
		}
	}
}

// deliver queues a room broadcast. It reports false when the client cannot
// keep up.
func (c *Client) deliver(roomID int, messageID int64, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	if held, ok := c.held[roomID]; ok {
		if len(held) >= cap(c.send) {
			return false
		}
		c.held[roomID] = append(held, heldFrame{messageID: messageID, data: data})
		return true
	}
	return c.enqueueLocked(data)
}

func (c *Client) enqueueLocked(data []byte) bool {
	select {
	case c.send <- data:
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
