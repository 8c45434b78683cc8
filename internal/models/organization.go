package models

import "time"

// MemberRole is the role a user holds inside one organization.
type MemberRole string

const (
	MemberRoleOwner MemberRole = "OWNER"
	MemberRoleAdmin MemberRole = "ADMIN"
	MemberRoleStaff MemberRole = "STAFF"
)

// CreditManagerRoles may issue manual ledger adjustments and trigger reconciliation.
var CreditManagerRoles = []MemberRole{MemberRoleOwner, MemberRoleAdmin}

// Organization is the tenant boundary every other entity is scoped to.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Membership links a user to an organization.
type Membership struct {
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	Role           MemberRole `db:"role" json:"role"`
}

// HasRole reports whether the member holds one of roles.
func (m Membership) HasRole(roles ...MemberRole) bool {
	for _, role := range roles {
		if m.Role == role {
			return true
		}
	}
	return false
}

// CanManageCredits reports whether the member may issue manual ledger adjustments.
func (m Membership) CanManageCredits() bool {
	return m.HasRole(CreditManagerRoles...)
}
