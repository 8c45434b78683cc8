package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/response"
)

// RequireMemberRoles allows only members holding one of roles in the selected organization.
func RequireMemberRoles(roles ...models.MemberRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		member := Membership(c)
		if member == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !member.HasRole(roles...) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not allowed for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}
