package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
)

// AuthMiddleware accepts "Authorization: Bearer <jwt>" as an alternative to the session token.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetUsernameInContext(c.Request.Context(), customClaim.Username)
		ctx = withUser(ctx, customClaim.ID, customClaim.Username, models.UserRole(customClaim.Role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func withUser(ctx context.Context, id int, name string, role models.UserRole) context.Context {
	ctx = utils.SetUserIdInContext(ctx, id)
	ctx = utils.SetUserNameInContext(ctx, name)
	return utils.SetIsAdminInContext(ctx, role == models.UserRoleAdmin)
}

// RequireOperator rejects requests that carry no operator identity.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if utils.GetOperatorIdFromContext(c.Request.Context()) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin limits repair/inspection endpoints to administrators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context()); !ok || !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
