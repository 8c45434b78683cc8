package models

import "time"

// ClassEvent is one scheduled class session with a fixed seat capacity.
type ClassEvent struct {
	ID              string    `db:"id" json:"id"`
	OrganizationID  string    `db:"organization_id" json:"organization_id"`
	Title           string    `db:"title" json:"title"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Capacity        int       `db:"capacity" json:"capacity"`
	Notes           string    `db:"notes" json:"notes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

