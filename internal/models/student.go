package models

import "time"

// EnrollmentType classifies how a student is enrolled with the organization.
type EnrollmentType string

const (
	EnrollmentTypeRegular      EnrollmentType = "REGULAR"
	EnrollmentTypeExperimental EnrollmentType = "EXPERIMENTAL"
)

// Student is an organization member who attends classes and holds reposition credits.
// RepositionCredits is a projection of the credit ledger, never written directly.
type Student struct {
	ID                string         `db:"id" json:"id"`
	OrganizationID    string         `db:"organization_id" json:"organization_id"`
	Name              string         `db:"name" json:"name"`
	EnrollmentType    EnrollmentType `db:"enrollment_type" json:"enrollment_type"`
	RepositionCredits int            `db:"reposition_credits" json:"reposition_credits"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}
