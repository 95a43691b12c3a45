package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"auction-engine/internal/metrics"
	"auction-engine/utils"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 64
)

var ErrClientClosed = errors.New("realtime: client closed")

// Client is one websocket connection. The hub enqueues frames on send; only
// WritePump writes to the connection.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection for userID.
func NewClient(conn *websocket.Conn, userID string) *Client {
	metrics.WSConnected()
	return newClient(conn, userID, sendQueueSize)
}

func newClient(conn *websocket.Conn, userID string, size int) *Client {
	return &Client{
		ID:     utils.GenerateID(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

// Send encodes v and queues it. It returns false when the queue is full or the
// client is closed.
func (c *Client) Send(v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		utils.Error("realtime: failed to encode frame", map[string]any{"client_id": c.ID, "error": err.Error()})
		return false
	}
	return c.enqueue(raw)
}

func (c *Client) enqueue(raw []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- raw:
		return true
	default:
		utils.Warn("realtime: client send queue full", map[string]any{"client_id": c.ID, "user_id": c.UserID})
		return false
	}
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the client down with a normal closure.
func (c *Client) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith shuts the client down, sending code and reason as the close frame.
func (c *Client) CloseWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		metrics.WSDisconnected()
		_ = c.conn.Close()
	})
}

// WritePump drains the send queue and pings the peer until the client closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				utils.Debug("realtime: write failed", map[string]any{"client_id": c.ID, "error": err.Error()})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump hands every inbound text frame to handle until the peer goes away
// or handle returns an error. There is no read deadline; peers must ping.
func (c *Client) ReadPump(handle func(raw []byte) error) {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("realtime: unexpected close", map[string]any{"client_id": c.ID, "error": err.Error()})
			}
			return
		}
		if err := handle(raw); err != nil {
			return
		}
	}
}
