package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"go.uber.org/zap"
)

type WSHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

// Serve handles GET /v1/ws
//
// Streams change events for the caller's account. Collaborators receive the
// parent account's events since they act on its items.
func (h *WSHandler) Serve(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	if err := h.hub.Serve(c.Writer, c.Request, identity.AccountID); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
	}
}
