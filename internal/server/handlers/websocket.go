// internal/server/handlers/websocket.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sfportal/internal/service/explorer"
)

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	conn         *websocket.Conn
	send         chan []byte
	sessionID    string
	manager      *explorer.Manager
	logger       *zap.Logger
	subscription *nats.Subscription
	closeOnce    sync.Once
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

// upgrader is used to upgrade HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ExplorerWebSocketHandler streams view snapshots for one explorer session.
// The client receives the current snapshot on connect and every recomputed
// snapshot after that; it can push filter changes and refreshes back over
// the same connection.
func ExplorerWebSocketHandler(manager *explorer.Manager, natsConn *nats.Conn, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if sessionID == "" {
			http.Error(w, "Missing session ID", http.StatusBadRequest)
			return
		}

		session, err := manager.Get(sessionID)
		if err != nil {
			if errors.Is(err, explorer.ErrSessionNotFound) {
				http.Error(w, "Session not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to load session", http.StatusInternalServerError)
			}
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade to websocket", zap.Error(err))
			return
		}

		client := &WebSocketClient{
			conn:      conn,
			send:      make(chan []byte, 16),
			sessionID: sessionID,
			manager:   manager,
			logger:    logger.With(zap.String("session", sessionID)),
		}

		sub, err := natsConn.Subscribe(session.Subject(), func(msg *nats.Msg) {
			select {
			case client.send <- msg.Data:
			default:
				// Slow consumer; the next snapshot supersedes this one anyway
			}
		})
		if err != nil {
			client.logger.Error("failed to subscribe to view subject", zap.Error(err))
			conn.Close()
			return
		}
		client.subscription = sub

		go client.writePump()
		go client.readPump()

		// Initial snapshot so the client renders without waiting for the
		// next recompute
		if snapshot, err := json.Marshal(session.View()); err == nil {
			client.send <- snapshot
		}

		client.logger.Info("websocket connected")
	}
}

// inboundMessage is a client command pushed over the socket
type inboundMessage struct {
	Type    string          `json:"type"`
	Filters json.RawMessage `json:"filters"`
}

// readPump pumps client commands from the WebSocket connection into the
// session
func (c *WebSocketClient) readPump() {
	config := DefaultWebSocketConfig()

	defer func() {
		c.closeConnection()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", zap.Error(err))
			}
			break
		}

		c.processIncomingMessage(message)
	}
}

// writePump pumps snapshots from the bus subscription to the WebSocket
// connection
func (c *WebSocketClient) writePump() {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processIncomingMessage handles one client command
func (c *WebSocketClient) processIncomingMessage(message []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to parse websocket message", zap.Error(err))
		return
	}

	session, err := c.manager.Get(c.sessionID)
	if err != nil {
		c.sendError("session expired")
		return
	}

	switch msg.Type {
	case "filters":
		var payload filterPayload
		if err := json.Unmarshal(msg.Filters, &payload); err != nil {
			c.sendError("invalid filters")
			return
		}
		criteria, err := criteriaFromPayload(payload)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if err := session.SetCriteria(criteria); err != nil {
			c.sendError(err.Error())
		}

	case "refresh":
		session.Refresh()

	default:
		c.logger.Warn("unknown message type", zap.String("type", msg.Type))
	}
}

// sendError pushes an error frame without dropping the connection
func (c *WebSocketClient) sendError(message string) {
	frame, _ := json.Marshal(map[string]string{
		"type":  "error",
		"error": message,
	})

	select {
	case c.send <- frame:
	default:
	}
}

// closeConnection closes the WebSocket connection and cleans up resources
func (c *WebSocketClient) closeConnection() {
	c.closeOnce.Do(func() {
		if c.subscription != nil {
			c.subscription.Unsubscribe()
		}

		c.conn.Close()
		c.logger.Info("websocket disconnected")
	})
}
