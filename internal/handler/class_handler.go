package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/dto"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/response"
)

type enrollmentService interface {
	Request(ctx context.Context, organizationID, classEventID string, req dto.EnrollmentRequest) (*dto.EnrollmentResult, error)
}

type rosterService interface {
	Get(ctx context.Context, organizationID, classEventID string) (*dto.ClassRoster, error)
}

type displacementService interface {
	Resolve(ctx context.Context, organizationID, classEventID string, req dto.DisplacementRequest) (*dto.DisplacementResult, error)
}

// ClassHandler exposes seat booking endpoints of a class event.
type ClassHandler struct {
	enrollments  enrollmentService
	roster       rosterService
	displacement displacementService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(enrollments enrollmentService, roster rosterService, displacement displacementService) *ClassHandler {
	return &ClassHandler{enrollments: enrollments, roster: roster, displacement: displacement}
}

// Enroll godoc
// @Summary Request a seat in a class event
// @Description A full class answers 409 CLASS_FULL with the current occupants in data.
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class event ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Param payload body dto.EnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/enrollments [post]
func (h *ClassHandler) Enroll(c *gin.Context) {
	var req dto.EnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	result, err := h.enrollments.Request(c.Request.Context(), organizationFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Outcome == dto.EnrollmentFull {
		response.ErrorWithData(c, appErrors.ErrClassFull, result)
		return
	}
	response.Created(c, result)
}

// Roster godoc
// @Summary List the attendees of a class event
// @Tags Classes
// @Produce json
// @Param id path string true "Class event ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendees [get]
func (h *ClassHandler) Roster(c *gin.Context) {
	roster, err := h.roster.Get(c.Request.Context(), organizationFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// Displace godoc
// @Summary Replace an attendee of a full class with another student
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class event ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Param payload body dto.DisplacementRequest true "Displacement payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/displacements [post]
func (h *ClassHandler) Displace(c *gin.Context) {
	var req dto.DisplacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid displacement payload"))
		return
	}
	result, err := h.displacement.Resolve(c.Request.Context(), organizationFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
