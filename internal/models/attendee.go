package models

import (
	"fmt"
	"strings"
	"time"
)

// AttendanceStatus is the lifecycle state of one enrollment.
type AttendanceStatus string

const (
	AttendanceScheduled AttendanceStatus = "SCHEDULED"
	AttendancePresent   AttendanceStatus = "PRESENT"
	AttendanceAbsent    AttendanceStatus = "ABSENT"
)

// AttendanceStatuses lists every status in lifecycle order.
var AttendanceStatuses = []AttendanceStatus{AttendanceScheduled, AttendancePresent, AttendanceAbsent}

// Valid reports whether s is a known status.
func (s AttendanceStatus) Valid() bool {
	for _, known := range AttendanceStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseAttendanceStatus maps user input to a known status.
func ParseAttendanceStatus(raw string) (AttendanceStatus, error) {
	s := AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown attendance status %q", raw)
	}
	return s, nil
}

// ClassAttendee is a student's enrollment in a class event.
// OrganizationID is not stored on the row; it is joined from the owning class.
type ClassAttendee struct {
	ID             string           `db:"id" json:"id"`
	ClassEventID   string           `db:"class_event_id" json:"class_event_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Status         AttendanceStatus `db:"status" json:"status"`
	CreditSpent    bool             `db:"credit_spent" json:"credit_spent"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
	OrganizationID string           `db:"organization_id" json:"-"`
}
