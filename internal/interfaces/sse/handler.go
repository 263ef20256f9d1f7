package sse

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
)

// ServerSentEventHandler streams hub traffic to read-only observers.
type ServerSentEventHandler struct {
	hub    *hub.Hub
	logger logger.Logger
}

func NewServerSentEventHandler(hubInstance *hub.Hub, logger logger.Logger) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "sse"),
	}
}

// Connect streams every hub message as a "message" event until the client
// disconnects or the hub closes. Observers cannot publish or trigger work.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	sub, err := h.hub.Subscribe()
	if err != nil {
		h.logger.Errorf("Failed to subscribe observer: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}
	defer sub.Close()

	w := c.Writer
	ctx := c.Request.Context()

	h.logger.Infof("SSE observer %s connected", c.ClientIP())
	sse.Encode(w, sse.Event{
		Event: "connected",
		Data: map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
	w.Flush()

	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			var lagged *hub.LaggedError
			if errors.As(err, &lagged) {
				sse.Encode(w, sse.Event{Event: "lagged", Data: lagged.Skipped})
				w.Flush()
				continue
			}
			if errors.Is(err, hub.ErrHubClosed) {
				sse.Encode(w, sse.Event{Event: "closed", Data: "hub closed"})
				w.Flush()
			}
			h.logger.Infof("SSE observer %s disconnected: %v", c.ClientIP(), err)
			return
		}

		if err := sse.Encode(w, sse.Event{
			Id:    msg.ID,
			Event: "message",
			Data:  msg.Text,
		}); err != nil {
			h.logger.Debugf("SSE write failed: %v", err)
			return
		}
		w.Flush()
	}
}

// SSEHeadersMiddleware sets the headers an event stream needs.
func SSEHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no") // For nginx
		c.Next()
	}
}
