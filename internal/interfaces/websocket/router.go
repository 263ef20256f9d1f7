package websocket

import (
	"github.com/gin-gonic/gin"

	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(logger logger.Logger, r *relay.Relay, timeouts Timeouts, rg *gin.RouterGroup) {
	wsHandler := NewWebSocketHandler(r, timeouts, logger)

	rg.GET("/ws", wsHandler.Connect)
}
