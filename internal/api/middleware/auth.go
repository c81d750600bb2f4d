package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/internal/models"
	"example.com/backstage/services/esign/internal/repository"
)

// UserContextKey is where the authenticated user is stored on the gin context
const UserContextKey = "current_user"

// APIKeyAuth validates Bearer API keys from the Authorization header and
// resolves them to a user. Handlers pass the user explicitly into the
// orchestrator; authorization decisions never read ambient session state.
func APIKeyAuth(repo repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format. Expected: 'Bearer {token}'"})
			c.Abort()
			return
		}

		user, err := repo.GetUserByAPIKey(c.Request.Context(), parts[1])
		if err != nil {
			log.Warn().Err(err).Msg("Invalid API key")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by APIKeyAuth
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserContextKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}
