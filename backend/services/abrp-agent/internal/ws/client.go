package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one websocket subscriber of the notification stream.
type Client struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	writeTimeout time.Duration
	onClose      func(id string)

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(string)) *Client {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Client{
		id:           newClientID(),
		conn:         conn,
		send:         make(chan []byte, 16),
		logger:       logger,
		writeTimeout: writeTimeout,
		onClose:      onClose,
		closed:       make(chan struct{}),
	}
}

// ID returns identifier.
func (c *Client) ID() string {
	return c.id
}

// Start launches read/write pumps and blocks until the connection closes.
func (c *Client) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump only consumes control frames; subscribers never send data.
func (c *Client) readPump(ctx context.Context) {
	defer c.cleanup()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logger.Debug("notification stream closed", zap.String("client_id", c.id), zap.Error(err))
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message, dropping it when the client lags.
func (c *Client) Send(msg []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping notification, client buffer full", zap.String("client_id", c.id))
	}
}

// Ping sends ping.
func (c *Client) Ping() error {
	return c.write(websocket.PingMessage, []byte("ping"))
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) cleanup() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c.id)
		}
	})
}
