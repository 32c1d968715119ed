package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
)

// UserHandler serves the caller's own profile and inbox.
type UserHandler struct {
	accounts      repository.AccountRepository
	notifications repository.NotificationRepository
	logger        *zap.Logger
}

func NewUserHandler(accounts repository.AccountRepository, notifications repository.NotificationRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, notifications: notifications, logger: logger}
}

type meResponse struct {
	Identity       *models.Identity `json:"identity"`
	DisplayName    string           `json:"display_name"`
	FollowedAlerts []uuid.UUID      `json:"followed_alerts"`
}

// GetMe handles GET /v1/me
//
// Returns the live identity the token resolved to, plus the profile fields
// the dashboard needs. A collaborator sees the parent account's profile.
func (h *UserHandler) GetMe(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	account, err := h.accounts.FindByID(c.Request.Context(), identity.AccountID)
	if err != nil {
		h.logger.Error("failed to get account", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to get account"})
		return
	}
	// The middleware just resolved this account, so a miss here means it
	// was deleted in between.
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	followed := account.FollowedAlerts
	if followed == nil {
		followed = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, meResponse{
		Identity:       identity,
		DisplayName:    account.DisplayName,
		FollowedAlerts: followed,
	})
}

// ListNotifications handles GET /v1/me/notifications?limit=20
func (h *UserHandler) ListNotifications(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			badRequest(c, "invalid 'limit' parameter")
			return
		}
		limit = min(n, 100)
	}

	identity := middleware.GetIdentity(c)
	items, err := h.notifications.ListByAccount(c.Request.Context(), identity.AccountID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list notifications"})
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	c.JSON(http.StatusOK, items)
}
