package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/me", RequireOperator(), func(c *gin.Context) {
		ctx := c.Request.Context()
		id, _ := utils.GetUserIdFromContext(ctx)
		isAdmin, _ := utils.GetIsAdminFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{"id": id, "admin": isAdmin})
	})
	r.GET("/admin", RequireOperator(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	r := newAuthRouter()

	operator, err := utils.JwtGenerate(11, "op@fleet.local", string(models.UserRoleOperator))
	require.NoError(t, err)
	admin, err := utils.JwtGenerate(12, "admin@fleet.local", string(models.UserRoleAdmin))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", operator).Code, "missing Bearer prefix")
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "Bearer garbage").Code)

	w := serve(r, "/me", "Bearer "+operator)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":11,"admin":false}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, "/admin", "Bearer "+operator).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/admin", "Bearer "+admin).Code)
}
