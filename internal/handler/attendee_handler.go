package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/response"
)

type attendanceService interface {
	UpdateStatus(ctx context.Context, organizationID, attendeeID string, req dto.UpdateAttendanceRequest) (*models.ClassAttendee, error)
	Remove(ctx context.Context, organizationID, attendeeID string) (*dto.RemovalResult, error)
}

// AttendeeHandler exposes attendance lifecycle endpoints.
type AttendeeHandler struct {
	attendance attendanceService
}

// NewAttendeeHandler constructs AttendeeHandler.
func NewAttendeeHandler(attendance attendanceService) *AttendeeHandler {
	return &AttendeeHandler{attendance: attendance}
}

// UpdateStatus godoc
// @Summary Set the attendance status of an attendee
// @Tags Attendees
// @Accept json
// @Produce json
// @Param id path string true "Attendee ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Param payload body dto.UpdateAttendanceRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /attendees/{id}/status [patch]
func (h *AttendeeHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	attendee, err := h.attendance.UpdateStatus(c.Request.Context(), organizationFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, attendee)
}

// Remove godoc
// @Summary Remove an attendee, refunding a spent credit
// @Tags Attendees
// @Produce json
// @Param id path string true "Attendee ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Success 200 {object} response.Envelope
// @Router /attendees/{id} [delete]
func (h *AttendeeHandler) Remove(c *gin.Context) {
	result, err := h.attendance.Remove(c.Request.Context(), organizationFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
