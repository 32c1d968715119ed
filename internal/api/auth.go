package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/middleware"
	"github.com/lalith-99/disruptionhub/internal/models"
	"go.uber.org/zap"
)

// Authenticator is the part of the token authority the auth endpoints use.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, *models.Identity, error)
	Revoke(ctx context.Context, raw string) error
}

// AuthHandler serves login and logout. Login is the only public endpoint
// that produces a token; logout needs one.
type AuthHandler struct {
	authority Authenticator
	logger    *zap.Logger
}

func NewAuthHandler(authority Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authority: authority, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what login returns. The client sends the token back as
// "Authorization: Bearer <token>" on every later request.
type authResponse struct {
	Token    string           `json:"token"`
	Identity *models.Identity `json:"identity"`
}

// Login handles POST /v1/auth/login
//
// The email may belong to a primary account or to a collaborator embedded
// in one; the authority tries both. A wrong password, an unknown email and a
// suspended account all produce the same 401.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	token, identity, err := h.authority.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuthentication {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("user logged in",
		zap.Stringer("account_id", identity.AccountID),
		zap.String("email", identity.ActorEmail()),
		zap.Bool("collaborator", identity.Collaborator != nil),
	)
	c.JSON(http.StatusOK, authResponse{Token: token, Identity: identity})
}

// Logout handles POST /v1/auth/logout
//
// Revokes the token the request was made with until it would have expired.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authority.Revoke(c.Request.Context(), middleware.GetToken(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
