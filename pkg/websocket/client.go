package websocket

import (
	"sync"
	"time"

	"ridechat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client is one authenticated connection. Frames read from it are handled
// sequentially on its read goroutine; everything written to it goes
// through the send queue drained by its write goroutine.
type Client struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}

	SessionID   string
	UserID      primitive.ObjectID
	Role        models.Role
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

func newClient(handler *Handler, conn *websocket.Conn, identity *models.Identity) *Client {
	return &Client{
		handler:     handler,
		conn:        conn,
		send:        make(chan []byte, handler.config.SendBufferSize),
		done:        make(chan struct{}),
		SessionID:   uuid.NewString(),
		UserID:      identity.UserID,
		Role:        identity.Role,
		ConnectedAt: time.Now(),
	}
}

// enqueue queues payload without blocking. A full queue means the peer is
// not keeping up: the client is closed and false is returned.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.closeLocked()
		return false
	}
}

// Close stops the write goroutine, which sends a close frame and closes the
// transport. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Done is closed once the read goroutine has exited and the client has
// been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readPump() {
	defer func() {
		c.handler.disconnect(c)
		c.conn.Close()
		close(c.done)
	}()

	cfg := c.handler.config
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.handler.logger.WithUserID(c.UserID).WithError(err).Warn("WebSocket read failed")
			}
			break
		}

		c.handler.dispatch(c, message)
	}
}

// writePump writes one frame per queued payload; clients parse every text
// frame as a single JSON document.
func (c *Client) writePump() {
	cfg := c.handler.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
