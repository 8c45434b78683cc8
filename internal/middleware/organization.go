package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/response"
)

const (
	// OrganizationHeader carries the organization the caller has selected.
	OrganizationHeader = "X-Organization-ID"
	// ContextOrganizationKey stores the resolved organization id; the request logger reads it.
	ContextOrganizationKey = "organization_id"
	// ContextMembershipKey stores the caller's membership in that organization.
	ContextMembershipKey = "membership"
)

// OrganizationAuthorizer resolves the selected organization for a user.
type OrganizationAuthorizer interface {
	Authorize(ctx context.Context, selected, userID string) (*models.Membership, error)
}

// Organization requires a selected organization the authenticated user belongs to. It runs after JWT.
func Organization(scope OrganizationAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		member, err := scope.Authorize(c.Request.Context(), c.GetHeader(OrganizationHeader), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextOrganizationKey, member.OrganizationID)
		c.Set(ContextMembershipKey, member)
		c.Next()
	}
}

// OrganizationID returns the organization resolved by Organization.
func OrganizationID(c *gin.Context) string {
	return c.GetString(ContextOrganizationKey)
}

// Membership returns the caller's membership resolved by Organization, or nil.
func Membership(c *gin.Context) *models.Membership {
	value, exists := c.Get(ContextMembershipKey)
	if !exists {
		return nil
	}
	member, _ := value.(*models.Membership)
	return member
}
