// Package hub tracks the open WebSocket connections of the relay.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/session"
)

// Connection represents a single WebSocket connection and the session it owns.
type Connection struct {
	Session *session.Session
	Conn    *websocket.Conn
	mu      sync.Mutex
}

// ID returns the connection handle.
func (c *Connection) ID() string {
	return c.Session.ID()
}

// Hub manages all open connections, joined or not.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection
	closeAll   chan chan struct{}
	quit       chan struct{}

	sendBuffer int
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu sync.RWMutex
}

// NewHub creates a new Hub. sendBuffer sizes each session's outbound queue.
func NewHub(sendBuffer int, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		closeAll:    make(chan chan struct{}),
		quit:        make(chan struct{}),
		sendBuffer:  sendBuffer,
		metrics:     m,
		log:         logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID()] = conn
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.log.Debug().Str("session", conn.ID()).Msg("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			_, ok := h.connections[conn.ID()]
			delete(h.connections, conn.ID())
			h.mu.Unlock()
			if ok {
				h.metrics.ConnectionClosed()
				h.log.Debug().Str("session", conn.ID()).Msg("connection unregistered")
			}

		case done := <-h.closeAll:
			h.mu.RLock()
			for _, conn := range h.connections {
				conn.Close()
			}
			h.mu.RUnlock()
			close(done)

		case <-h.quit:
			return
		}
	}
}

// Stop ends the main loop.
func (h *Hub) Stop() {
	close(h.quit)
}

// NewConnection wraps ws in a connection with a fresh, unbound session.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		Session: session.New(h.sendBuffer),
		Conn:    ws,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
	}
}

// CloseAll closes the transport of every open connection. Their read loops
// then run the normal disconnect path.
func (h *Hub) CloseAll() {
	done := make(chan struct{})
	select {
	case h.closeAll <- done:
		<-done
	case <-h.quit:
	}
}

// GetConnectionCount returns the number of open connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying transport.
func (c *Connection) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
