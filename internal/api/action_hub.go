package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"github.com/lalith-99/disruptionhub/internal/models"
	"go.uber.org/zap"
)

type ActionHubHandler struct {
	svc    *actionhub.Service
	logger *zap.Logger
}

func NewActionHubHandler(svc *actionhub.Service, logger *zap.Logger) *ActionHubHandler {
	return &ActionHubHandler{svc: svc, logger: logger}
}

type setStatusRequest struct {
	Status models.ActionStatus `json:"status" binding:"required"`
}

type setTabRequest struct {
	Tab models.ActiveTab `json:"tab" binding:"required"`
}

type addNoteRequest struct {
	Content string `json:"content"`
}

type addGuestsRequest struct {
	Guests []actionhub.GuestInput `json:"guests" binding:"required"`
}

// itemID parses the :id path param, writing a 400 when it is not a UUID.
func itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid action item ID")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /v1/action-hub?status=new
func (h *ActionHubHandler) List(c *gin.Context) {
	var status *models.ActionStatus
	if s := c.Query("status"); s != "" {
		st := models.ActionStatus(s)
		status = &st
	}

	ctx := c.Request.Context()
	items, err := h.svc.List(ctx, middleware.GetIdentity(c), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	engs, err := h.svc.Engagements(ctx, items)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newActionItemViews(items, engs))
}

// Get handles GET /v1/action-hub/:id
func (h *ActionHubHandler) Get(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	item, eng, err := h.svc.GetWithAlert(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newActionItemView(item, eng))
}

// Logs handles GET /v1/action-hub/:id/logs
func (h *ActionHubHandler) Logs(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	logs, err := h.svc.Logs(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// SetStatus handles PUT /v1/action-hub/:id/status
func (h *ActionHubHandler) SetStatus(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	item, err := h.svc.SetStatus(c.Request.Context(), middleware.GetIdentity(c), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newActionItemView(item, nil))
}

// SetTab handles PUT /v1/action-hub/:id/tab
func (h *ActionHubHandler) SetTab(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req setTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	item, err := h.svc.SetActiveTab(c.Request.Context(), middleware.GetIdentity(c), id, req.Tab)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newActionItemView(item, nil))
}

// AddNote handles POST /v1/action-hub/:id/notes
func (h *ActionHubHandler) AddNote(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req addNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	item, err := h.svc.AddNote(c.Request.Context(), middleware.GetIdentity(c), id, req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newActionItemView(item, nil))
}

// AddGuests handles POST /v1/action-hub/:id/guests
//
// Entries without an email are dropped, not rejected; the response says how
// many were accepted.
func (h *ActionHubHandler) AddGuests(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req addGuestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	item, accepted, err := h.svc.AddGuests(c.Request.Context(), middleware.GetIdentity(c), id, req.Guests)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"accepted": accepted,
		"item":     newActionItemView(item, nil),
	})
}
