package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/models"
	"go.uber.org/zap"
)

// Context keys for values the auth middleware stores in gin.Context.
// Handlers read them through GetIdentity and GetToken, never c.Get directly.
const (
	ContextKeyIdentity = "identity"
	ContextKeyToken    = "token"
)

// IdentityResolver turns a raw bearer token into a live identity.
// *auth.Authority satisfies it.
type IdentityResolver interface {
	Resolve(ctx context.Context, raw string) (*models.Identity, error)
}

// RequireAuth resolves the bearer token on every request. The account is
// re-read each time, so a role change or suspension applies to the very next
// request rather than at token expiry.
//
// Every credential problem gets the same 401 body. Browsers cannot set
// headers on a websocket handshake, so upgrade requests may pass the token
// as ?token= instead.
func RequireAuth(resolver IdentityResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			unauthorized(c)
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindDependency {
				logger.Error("identity lookup failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
					"error": "upstream dependency unavailable",
				})
				return
			}
			unauthorized(c)
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		if websocket.IsWebSocketUpgrade(c.Request) {
			return c.Query("token")
		}
		return ""
	}
	// "Bearer eyJhbG..." -> ["Bearer", "eyJhbG..."]
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": apperr.Authentication(nil).Error(),
	})
}

// GetIdentity returns the identity stored by RequireAuth, or nil on routes
// that are not behind it.
func GetIdentity(c *gin.Context) *models.Identity {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return nil
	}
	id, ok := val.(*models.Identity)
	if !ok {
		return nil
	}
	return id
}

// GetToken returns the raw bearer token the request was authenticated with.
func GetToken(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}
