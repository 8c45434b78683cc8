package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/middleware"
)

func organizationFromContext(c *gin.Context) string {
	return middleware.OrganizationID(c)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
