package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"go.uber.org/zap"
)

// AlertHandler serves the caller's state on an alert and the flag and follow
// toggles. All are addressed by alert, since the caller may not have an
// Action Item yet.
type AlertHandler struct {
	svc    *actionhub.Service
	logger *zap.Logger
}

func NewAlertHandler(svc *actionhub.Service, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

func alertID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("alertId"))
	if err != nil {
		badRequest(c, "invalid alert ID")
		return uuid.Nil, false
	}
	return id, true
}

// State handles GET /v1/alerts/:alertId
func (h *AlertHandler) State(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	st, err := h.svc.AlertState(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newAlertStateView(st))
}

// Flag handles POST /v1/alerts/:alertId/flag
func (h *AlertHandler) Flag(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	res, err := h.svc.ToggleFlag(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newToggleView(res))
}

// Follow handles POST /v1/alerts/:alertId/follow
//
// Unfollowing an alert the caller never flagged removes the Action Item;
// the response then carries "item": null and "deleted": true.
func (h *AlertHandler) Follow(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	res, err := h.svc.ToggleFollow(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newToggleView(res))
}
