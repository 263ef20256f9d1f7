package sse

import (
	"github.com/gin-gonic/gin"

	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(hubInstance, logger)

	rg.GET("/sse", SSEHeadersMiddleware(), sseHandler.Connect)
}
