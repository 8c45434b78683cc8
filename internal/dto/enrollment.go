package dto

import "github.com/noah-isme/reposition-api/internal/models"

// EnrollmentRequest asks for a seat in a class event.
type EnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	UseCredit bool   `json:"use_credit"`
}

// EnrollmentOutcome tells whether a seat was granted.
type EnrollmentOutcome string

const (
	EnrollmentAccepted EnrollmentOutcome = "ACCEPTED"
	EnrollmentFull     EnrollmentOutcome = "FULL"
)

// EnrollmentResult is the answer to an EnrollmentRequest.
// A FULL result carries the current occupants so the caller can pick one to displace.
type EnrollmentResult struct {
	Outcome   EnrollmentOutcome         `json:"outcome"`
	Attendee  *models.ClassAttendee     `json:"attendee,omitempty"`
	Charge    *models.CreditTransaction `json:"charge,omitempty"`
	Occupants []models.ClassAttendee    `json:"occupants,omitempty"`
}

// UpdateAttendanceRequest sets the status of one attendee.
type UpdateAttendanceRequest struct {
	Status string `json:"status" validate:"required"`
}

// RemovalResult reports a deleted enrollment and the refund it produced, if any.
type RemovalResult struct {
	Attendee models.ClassAttendee      `json:"attendee"`
	Refund   *models.CreditTransaction `json:"refund,omitempty"`
}

// DisplacementRequest replaces an incumbent attendee of a full class with another student.
type DisplacementRequest struct {
	IncumbentAttendeeID string `json:"incumbent_attendee_id" validate:"required,uuid"`
	StudentID           string `json:"student_id" validate:"required,uuid"`
	UseCredit           bool   `json:"use_credit"`
}

// DisplacementResult reports both halves of a committed displacement.
type DisplacementResult struct {
	Removed  models.ClassAttendee      `json:"removed"`
	Refund   *models.CreditTransaction `json:"refund,omitempty"`
	Attendee models.ClassAttendee      `json:"attendee"`
	Charge   *models.CreditTransaction `json:"charge,omitempty"`
}

// ClassRoster is a class event with its attendees and seat usage.
type ClassRoster struct {
	Class     models.ClassEvent      `json:"class"`
	Occupancy int                    `json:"occupancy"`
	Available int                    `json:"available"`
	Attendees []models.ClassAttendee `json:"attendees"`
}
