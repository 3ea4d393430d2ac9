package testutil

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/models"
)

// SetMockAuthContext sets the values the auth middleware would set for a verified token
func SetMockAuthContext(c *gin.Context, userID uint, role models.UserRole) {
	c.Set("user_id", userID)
	c.Set("user_role", role)
}

// MockAuth is a middleware that authenticates every request as userID with role
func MockAuth(userID uint, role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, userID, role)
		c.Next()
	}
}
