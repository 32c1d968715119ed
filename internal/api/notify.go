package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"github.com/lalith-99/disruptionhub/internal/notify"
	"go.uber.org/zap"
)

type NotifyHandler struct {
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

func NewNotifyHandler(dispatcher *notify.Dispatcher, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{dispatcher: dispatcher, logger: logger}
}

type notifyGuestsRequest struct {
	Message  string      `json:"message"`
	GuestIDs []uuid.UUID `json:"guest_ids"`
}

type notifyTeamRequest struct {
	Message      string `json:"message"`
	ManagersOnly bool   `json:"managers_only"`
}

type notifyResponse struct {
	*notify.Report
	Item *actionItemView `json:"item"`
}

// NotifyGuests handles POST /v1/action-hub/:id/notify-guests
//
// Always 200 once the batch ran, even if nothing was delivered: the body
// reports sent of total per guest.
func (h *NotifyHandler) NotifyGuests(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req notifyGuestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := h.dispatcher.NotifyGuests(c.Request.Context(), middleware.GetIdentity(c), id, req.Message, req.GuestIDs)
	if err != nil {
		h.respondBatchError(c, report, err)
		return
	}
	c.JSON(http.StatusOK, notifyResponse{Report: report, Item: newActionItemView(report.Item, nil)})
}

// NotifyTeam handles POST /v1/action-hub/:id/notify-team (premium)
func (h *NotifyHandler) NotifyTeam(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req notifyTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := h.dispatcher.NotifyTeam(c.Request.Context(), middleware.GetIdentity(c), id, req.Message, req.ManagersOnly)
	if err != nil {
		h.respondBatchError(c, report, err)
		return
	}
	c.JSON(http.StatusOK, notifyResponse{Report: report, Item: newActionItemView(report.Item, nil)})
}

// respondBatchError keeps the delivery report in the error body when mail
// already went out but the item could not be updated.
func (h *NotifyHandler) respondBatchError(c *gin.Context, report *notify.Report, err error) {
	status, body := errorBody(c, h.logger, err)
	if report != nil {
		body["report"] = report
	}
	c.JSON(status, body)
}
