package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/config"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
	"go-spreading-fire/internal/infrastructure/metrics"
	"go-spreading-fire/internal/interfaces/rest/v1/handler"
	"go-spreading-fire/internal/interfaces/sse"
	"go-spreading-fire/internal/interfaces/websocket"
)

func InitRouter(
	cfg *config.Config,
	hubInstance *hub.Hub,
	relayInstance *relay.Relay,
	reg *prometheus.Registry,
	log logger.Logger,
) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	rootGroup := router.Group("")

	rootGroup.GET("/hub/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":               "healthy",
			"hub_running":          hubInstance.IsRunning(),
			"subscribers":          hubInstance.SubscriberCount(),
			"sessions":             relayInstance.ActiveSessions(),
			"pending_calculations": relayInstance.PendingCalculations(),
		})
	})
	rootGroup.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	messageHandler := handler.NewMessageHandler(relayInstance, log)
	apiGroup := rootGroup.Group("/api")
	{
		apiGroup.POST("/messages", messageHandler.Publish)
	}

	sse.InitSSERouter(log, hubInstance, rootGroup)
	websocket.InitWebSocketRouter(log, relayInstance, websocket.Timeouts{
		PingInterval: cfg.PingInterval,
		PongTimeout:  cfg.PongTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, rootGroup)

	return router
}
