package memstore

import (
	"time"

	"github.com/noah-isme/reposition-api/internal/models"
)

// Demo fixture identifiers, stable so local clients can address them.
const (
	DemoOrganizationID = "00000000-0000-0000-0000-0000000000a1"
	DemoUserID         = "demo-admin"
	DemoClassID        = "00000000-0000-0000-0000-0000000000c1"
)

// DemoStudentIDs are the seeded students, in enrollment order.
var DemoStudentIDs = []string{
	"00000000-0000-0000-0000-0000000000b1",
	"00000000-0000-0000-0000-0000000000b2",
	"00000000-0000-0000-0000-0000000000b3",
}

// SeedDemo fills an empty store with one organization, an admin member, three students and a two-seat class.
func SeedDemo(s *Store, now time.Time) {
	s.PutOrganization(models.Organization{ID: DemoOrganizationID, Name: "Demo Studio"})
	s.PutMembership(models.Membership{OrganizationID: DemoOrganizationID, UserID: DemoUserID, Role: models.MemberRoleAdmin})
	names := []string{"Ana", "Bruno", "Carla"}
	for i, id := range DemoStudentIDs {
		s.PutStudent(models.Student{ID: id, OrganizationID: DemoOrganizationID, Name: names[i], EnrollmentType: models.EnrollmentTypeRegular})
	}
	s.PutClassEvent(models.ClassEvent{
		ID:              DemoClassID,
		OrganizationID:  DemoOrganizationID,
		Title:           "Evening group",
		StartTime:       now.Add(24 * time.Hour).Truncate(time.Hour),
		DurationMinutes: 60,
		Capacity:        2,
	})
}
