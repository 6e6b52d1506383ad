package middleware

import (
	"errors"
	"net/http"

	"chatio/internal/repository"

	"github.com/gin-gonic/gin"
)

// ActiveUser rejects tokens whose user was deactivated or deleted after the
// token was issued. Use after AuthRequired.
func ActiveUser(users repository.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		_, err := users.GetByID(c.Request.Context(), userID)
		if errors.Is(err, repository.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account inactive"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
			return
		}
		c.Next()
	}
}
