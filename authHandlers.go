package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/middlewares"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func sessionLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = 12
	}
	return time.Duration(hours) * time.Hour
}

func registerAuthRoutes(r gin.IRouter) {
	r.POST("/login", loginHandler())
	r.POST("/logout", middlewares.RequireOperator(), logoutHandler())
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		info, err := models.Login(c.Request.Context(), config.GetDB(), req.Username, req.Password, sessionLifespan())
		if err != nil {
			if errors.Is(err, models.ErrInvalidCredentials) || errors.Is(err, models.ErrUserDisabled) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			config.LogError(config.GetLogger(), "authHandlers.go", "loginHandler", "Login", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": info})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ok, err := models.Logout(ctx)
		if err != nil {
			username, _ := utils.GetUsernameFromContext(ctx)
			config.LogError(config.GetLogger(), "authHandlers.go", "logoutHandler", "Logout", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": ok})
	}
}
