// Package ws provides WebSocket server functionality for chat clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/spike/internal/config"
	"github.com/xiaot623/spike/internal/hub"
	"github.com/xiaot623/spike/internal/protocol"
	"github.com/xiaot623/spike/internal/relay"
	"github.com/xiaot623/spike/internal/session"
)

// Server handles WebSocket connections.
type Server struct {
	ctx      context.Context
	cfg      *config.Config
	hub      *hub.Hub
	relay    *relay.Relay
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer creates a new WebSocket server. ctx is the server lifetime; it
// bounds how long a sender waits for a message write slot.
func NewServer(ctx context.Context, cfg *config.Config, h *hub.Hub, r *relay.Relay, logger zerolog.Logger) *Server {
	return &Server{
		ctx:   ctx,
		cfg:   cfg,
		hub:   h,
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.CORSOrigins, r.Header.Get("Origin"))
			},
		},
		log: logger.With().Str("component", "ws").Logger(),
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade websocket")
		return err
	}

	// Create and register connection
	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}

	// Start reader and writer goroutines
	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection. Its exit is the
// single disconnect path for the connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.relay.Leave(conn.Session)
		s.hub.Unregister(conn)
		conn.Close()
	}()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		conn.Conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			return nil
		})
	}

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Str("session", conn.ID()).Msg("websocket read error")
			}
			break
		}

		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes queued frames and keepalive pings to the connection.
func (s *Server) writePump(conn *hub.Connection) {
	var tick <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer conn.Close()

	for {
		select {
		case message := <-conn.Session.Out():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug().Err(err).Str("session", conn.ID()).Msg("failed to write message")
				return
			}

		case <-conn.Session.Done():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-tick:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeJoin:
		s.handleJoin(conn, data)
	case protocol.TypePrivateMessage:
		s.handlePrivateMessage(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleJoin claims a username for the connection.
func (s *Server) handleJoin(conn *hub.Connection, data []byte) {
	var msg protocol.JoinMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid join message")
		return
	}

	if err := s.relay.Join(s.ctx, conn.Session, msg.Username); err != nil {
		s.sendRelayError(conn, msg.RequestID, err)
	}
}

// handlePrivateMessage routes a message to its recipient.
func (s *Server) handlePrivateMessage(conn *hub.Connection, data []byte) {
	var msg protocol.PrivateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid private_message message")
		return
	}

	if _, err := s.relay.Route(s.ctx, conn.Session, msg.To, msg.Message); err != nil {
		s.sendRelayError(conn, msg.RequestID, err)
	}
}

// sendRelayError maps a relay rejection to an error event.
func (s *Server) sendRelayError(conn *hub.Connection, requestID string, err error) {
	switch {
	case errors.Is(err, session.ErrClosed):
		// nobody left to tell
	case errors.Is(err, relay.ErrAlreadyOnline):
		s.sendError(conn, requestID, protocol.ErrorCodeAlreadyOnline, "Username already online")
	case errors.Is(err, relay.ErrAlreadyJoined):
		s.sendError(conn, requestID, protocol.ErrorCodeAlreadyJoined, "already joined")
	case errors.Is(err, relay.ErrUsernameRejected):
		s.sendError(conn, requestID, protocol.ErrorCodeUsernameRejected, err.Error())
	case errors.Is(err, relay.ErrNotJoined):
		s.sendError(conn, requestID, protocol.ErrorCodeNotJoined, "must join first")
	case errors.Is(err, relay.ErrRecipientRequired):
		s.sendError(conn, requestID, protocol.ErrorCodeRecipientRequired, "to is required")
	default:
		s.log.Error().Err(err).Str("session", conn.ID()).Msg("request failed")
		s.sendError(conn, requestID, protocol.ErrorCodeInternalError, "internal error")
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	data, err := json.Marshal(protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, requestID),
		Code:        code,
		Message:     message,
	})
	if err != nil {
		return
	}
	if err := conn.Session.Push(data); err != nil {
		s.log.Debug().Err(err).Str("session", conn.ID()).Str("code", code).Msg("error event dropped")
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
