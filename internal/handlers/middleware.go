package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	operatorIDKey = "operatorId"

	errMissingAuth  = "missing Authorization header"
	errAuthFormat   = "invalid Authorization header format"
	errInvalidToken = "invalid or expired token"
)

// authMiddleware accepts "Bearer <token>" (scheme case-insensitive) and stores the
// operator ID for downstream handlers.
func (h *Handler) authMiddleware(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMissingAuth})
		return
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errAuthFormat})
		return
	}

	operatorID, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Infow("auth_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidToken})
		return
	}

	c.Set(operatorIDKey, operatorID)
	c.Next()
}

// operatorID returns the authenticated operator, or 0 outside the protected group.
func operatorID(c *gin.Context) int {
	return c.GetInt(operatorIDKey)
}
