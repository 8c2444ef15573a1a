// Package ws hosts the websocket gateways. Each connection runs the gorilla
// two-pump pattern: a read loop that dispatches frames and a write loop that
// drains a buffered send channel and keeps the connection alive with pings.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/metrics"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

// Client wraps one websocket connection. Send never blocks; a full buffer
// drops the frame so one slow reader cannot stall a room.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	endpoint string
	ip       string

	limiter *limiter.MessageLimiter

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(conn *websocket.Conn, endpoint, ip string) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		endpoint: endpoint,
		ip:       ip,
		limiter:  limiter.NewMessageLimiter(),
		done:     make(chan struct{}),
	}
}

// Send marshals v and queues it. Satisfies game.Conn.
func (c *Client) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal outbound frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logger.Warn("send buffer full, dropping frame", "endpoint", c.endpoint)
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Run drives both pumps. handle is called for each inbound frame with the
// read loop's goroutine; onClose fires exactly once when the connection dies.
func (c *Client) Run(handle func(msg []byte), onClose func()) {
	metrics.ActiveConnections.WithLabelValues(c.endpoint).Inc()
	go c.writePump()
	c.readPump(handle)
	c.Close()
	onClose()
	metrics.ActiveConnections.WithLabelValues(c.endpoint).Dec()
}

func (c *Client) readPump(handle func(msg []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			metrics.RateLimitDrops.WithLabelValues(c.endpoint).Inc()
			c.Send(protocol.NewError(limiter.ErrTooManyRequests.Error()))
			continue
		}
		handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
