package service

import (
	"context"

	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

// SeatDecision is the answer to a seat request.
// When Accepted is false, Occupants lists the attendees currently holding seats, in enrollment order.
type SeatDecision struct {
	Class     *models.ClassEvent
	Accepted  bool
	Occupancy int
	Occupants []models.ClassAttendee
}

// CapacityManager decides whether a class has room. It never writes.
type CapacityManager struct {
	absentHoldsSeat bool
}

// NewCapacityManager constructs a CapacityManager. absentHoldsSeat makes ABSENT attendees count against capacity.
func NewCapacityManager(absentHoldsSeat bool) *CapacityManager {
	return &CapacityManager{absentHoldsSeat: absentHoldsSeat}
}

// OccupyingStatuses lists the statuses that take a seat.
func (m *CapacityManager) OccupyingStatuses() []models.AttendanceStatus {
	if m.absentHoldsSeat {
		return []models.AttendanceStatus{models.AttendanceScheduled, models.AttendancePresent, models.AttendanceAbsent}
	}
	return []models.AttendanceStatus{models.AttendanceScheduled, models.AttendancePresent}
}

// Occupies reports whether an attendee in status holds a seat.
func (m *CapacityManager) Occupies(status models.AttendanceStatus) bool {
	switch status {
	case models.AttendanceScheduled, models.AttendancePresent:
		return true
	case models.AttendanceAbsent:
		return m.absentHoldsSeat
	default:
		return false
	}
}

// Occupants filters attendees down to those holding a seat, preserving order.
func (m *CapacityManager) Occupants(attendees []models.ClassAttendee) []models.ClassAttendee {
	out := make([]models.ClassAttendee, 0, len(attendees))
	for _, attendee := range attendees {
		if m.Occupies(attendee.Status) {
			out = append(out, attendee)
		}
	}
	return out
}

// RequestSeat locks the class and checks it for room. The decision holds until tx ends,
// so a caller that inserts the attendee in the same transaction cannot overbook.
func (m *CapacityManager) RequestSeat(ctx context.Context, tx repository.Tx, organizationID, classEventID, studentID string) (*SeatDecision, error) {
	class, err := tx.LockClassEvent(ctx, classEventID)
	if err != nil {
		return nil, notFoundOr(err, "class event not found")
	}
	if err := ensureSameOrganization(organizationID, class.OrganizationID, "class event"); err != nil {
		return nil, err
	}

	enrolled, err := tx.AttendeeExists(ctx, classEventID, studentID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	occupancy, err := tx.CountOccupancy(ctx, classEventID, m.OccupyingStatuses())
	if err != nil {
		return nil, err
	}
	if occupancy < class.Capacity {
		return &SeatDecision{Class: class, Accepted: true, Occupancy: occupancy}, nil
	}

	attendees, err := tx.ListAttendees(ctx, classEventID)
	if err != nil {
		return nil, err
	}
	return &SeatDecision{Class: class, Occupancy: occupancy, Occupants: m.Occupants(attendees)}, nil
}
