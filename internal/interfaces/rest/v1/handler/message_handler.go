package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
)

type MessageHandler struct {
	relay  *relay.Relay
	logger logger.Logger
}

type PublishMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func NewMessageHandler(r *relay.Relay, logger logger.Logger) *MessageHandler {
	return &MessageHandler{
		relay:  r,
		logger: logger.WithField("handler", "message"),
	}
}

// Publish broadcasts server-side text to every connected client.
func (h *MessageHandler) Publish(c *gin.Context) {
	var req PublishMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	recipients, err := h.relay.Publish(req.Message)
	if errors.Is(err, hub.ErrHubClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Server is shutting down",
		})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to publish message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to send message",
		})
		return
	}

	h.logger.Infof("Server message published to %d subscribers", recipients)
	c.JSON(http.StatusOK, gin.H{
		"status":     "sent",
		"recipients": recipients,
	})
}
