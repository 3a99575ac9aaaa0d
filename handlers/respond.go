package handlers

import (
	"errors"
	"net/http"

	"grousion/services"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP statuses. Validation
// rejections stay 400s; the caller corrects and retries.
func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// currentUserID pulls the authenticated user id set by the auth
// middleware.
func currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, false
	}
	return userID.(uint), true
}
