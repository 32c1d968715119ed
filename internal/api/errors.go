package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"go.uber.org/zap"
)

// respondError maps the error taxonomy onto HTTP. This is the only place a
// Kind becomes a status code.
//
//	authentication -> 401   authorization -> 403 (+ reason)
//	not found      -> 404   invalid input -> 400
//	dependency     -> 502   anything else -> 500
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := errorBody(c, logger, err)
	c.JSON(status, body)
}

func errorBody(c *gin.Context, logger *zap.Logger, err error) (int, gin.H) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}

	switch appErr.Kind {
	case apperr.KindAuthentication:
		return http.StatusUnauthorized, gin.H{"error": appErr.Error()}
	case apperr.KindAuthorization:
		// Required and actual roles stay in the log; clients only get the reason.
		logger.Info("request forbidden",
			zap.String("path", c.FullPath()),
			zap.String("reason", appErr.Reason),
			zap.String("actual_role", string(appErr.Actual)),
		)
		return http.StatusForbidden, gin.H{"error": "forbidden", "reason": appErr.Reason}
	case apperr.KindNotFound:
		return http.StatusNotFound, gin.H{"error": appErr.Message}
	case apperr.KindInvalidInput:
		return http.StatusBadRequest, gin.H{"error": appErr.Message}
	case apperr.KindDependency:
		logger.Error("dependency failure",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		return http.StatusBadGateway, gin.H{"error": "upstream dependency unavailable"}
	default:
		logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
