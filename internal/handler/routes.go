package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/middleware"
	"github.com/noah-isme/reposition-api/internal/models"
)

// Routes bundles the handlers mounted under the API prefix.
type Routes struct {
	Classes   *ClassHandler
	Attendees *AttendeeHandler
	Credits   *CreditHandler
}

// Register mounts the API on group. guard runs before every route.
func (r Routes) Register(group *gin.RouterGroup, guard ...gin.HandlerFunc) {
	api := group.Group("", guard...)

	api.POST("/classes/:id/enrollments", r.Classes.Enroll)
	api.GET("/classes/:id/attendees", r.Classes.Roster)
	api.POST("/classes/:id/displacements", r.Classes.Displace)

	api.PATCH("/attendees/:id/status", r.Attendees.UpdateStatus)
	api.DELETE("/attendees/:id", r.Attendees.Remove)

	managers := middleware.RequireMemberRoles(models.CreditManagerRoles...)
	api.GET("/students/:id/credits", r.Credits.Balance)
	api.GET("/students/:id/credits/transactions", r.Credits.History)
	api.GET("/students/:id/credits/statement", r.Credits.Statement)
	api.POST("/students/:id/credits", managers, r.Credits.Adjust)
	api.POST("/students/:id/credits/reconcile", managers, r.Credits.Reconcile)
}
