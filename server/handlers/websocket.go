package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxClientMessage = 4096
)

// SessionControl is the part of the streaming controller the handlers drive.
type SessionControl interface {
	Start() bool
	Stop() bool
	Snapshot() models.SessionSnapshot
}

type WebSocketHandler struct {
	hub      *Hub
	session  SessionControl
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

type ClientMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewWebSocketHandler(hub *Hub, session SessionControl, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		session: session,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	cl := newClient(uuid.New().String())
	h.hub.register(cl)
	defer h.hub.unregister(cl)

	h.logger.Info("WebSocket client connected",
		zap.String("client_id", cl.id),
		zap.String("client_ip", c.ClientIP()))

	h.sendMessage(cl, "snapshot", h.session.Snapshot())

	go h.writePump(conn, cl)

	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read failed", zap.String("client_id", cl.id), zap.Error(err))
			}
			h.logger.Info("WebSocket client disconnected", zap.String("client_id", cl.id))
			return
		}
		h.handleMessage(cl, &message)
	}
}

func (h *WebSocketHandler) handleMessage(cl *client, message *ClientMessage) {
	switch message.Type {
	case "start":
		changed := h.session.Start()
		h.sendMessage(cl, "ack", gin.H{"action": "start", "changed": changed})
	case "stop":
		changed := h.session.Stop()
		h.sendMessage(cl, "ack", gin.H{"action": "stop", "changed": changed})
	case "ping":
		h.sendMessage(cl, "pong", gin.H{"timestamp": time.Now().Unix()})
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.sendError(cl, "Unknown message type: "+message.Type)
	}
}

// writePump owns all writes to conn and closes it when the client's send
// channel is closed.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("Failed to send WebSocket message", zap.String("client_id", cl.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Warn("Failed to send ping", zap.String("client_id", cl.id), zap.Error(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) sendMessage(cl *client, messageType string, data any) {
	payload, err := json.Marshal(ServerMessage{Type: messageType, Data: data})
	if err != nil {
		h.logger.Error("Failed to encode WebSocket message", zap.Error(err))
		return
	}
	if !cl.enqueue(payload) {
		h.logger.Debug("WebSocket client buffer full", zap.String("client_id", cl.id))
	}
}

func (h *WebSocketHandler) sendError(cl *client, errorMsg string) {
	h.sendMessage(cl, "error", gin.H{
		"message":   errorMsg,
		"timestamp": time.Now().Unix(),
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
