package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/logger"
)

// WebSocketHandler upgrades requests and hands each connection to the relay
type WebSocketHandler struct {
	relay    *relay.Relay
	timeouts Timeouts
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance
func NewWebSocketHandler(r *relay.Relay, timeouts Timeouts, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		relay:    r,
		timeouts: timeouts,
		logger:   logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Clients are not authenticated; any origin may connect.
				return true
			},
		},
	}
}

// Connect upgrades the request and serves a relay session until it ends
func (h *WebSocketHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.timeouts, h.logger)
	h.relay.Serve(c.Request.Context(), wsConn, wsConn.RemoteAddr())
}
