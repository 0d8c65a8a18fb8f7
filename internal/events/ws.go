package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSServer exposes the hub over a persistent WebSocket channel. No
// handshake payload is required on open; the server only pushes change
// events and discards anything the client sends.
type WSServer struct {
	hub          *Hub
	logger       *logrus.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

func NewWSServer(hub *Hub, writeTimeout time.Duration, logger *logrus.Logger) *WSServer {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSServer{
		hub:          hub,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API layer already applies CORS; the upgrade itself
			// accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and streams broadcast events until the
// client goes away or the hub shuts down.
func (s *WSServer) Handle(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	sub, err := s.hub.Subscribe()
	if err != nil {
		conn.Close()
		return
	}

	go s.writePump(conn, sub)
	go s.readPump(conn, sub)
}

// writePump owns all writes to the connection, preserving per-listener
// FIFO order.
func (s *WSServer) writePump(conn *websocket.Conn, sub *Subscription) {
	defer func() {
		s.hub.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case <-sub.Done():
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case event := <-sub.Events():
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.WithError(err).Error("Failed to encode change event")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.WithFields(logrus.Fields{
					"listener_id": sub.ID(),
				}).WithError(err).Warn("Listener write failed")
				return
			}
		}
	}
}

// readPump drains inbound frames so the connection's close handshake
// works; client payloads carry no meaning on this channel.
func (s *WSServer) readPump(conn *websocket.Conn, sub *Subscription) {
	defer s.hub.Unsubscribe(sub)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
