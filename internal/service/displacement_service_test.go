package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

func TestDisplacementSwapsAttendeesAndSettlesCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, stuX, 1)
	f.grant(t, stuZ, 2)
	x := f.enroll(t, stuX, true)
	f.enroll(t, stuY, false)
	require.Equal(t, dto.EnrollmentFull, f.enroll(t, stuZ, true).Outcome)

	result, err := f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{
		IncumbentAttendeeID: x.Attendee.ID,
		StudentID:           stuZ,
		UseCredit:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, stuX, result.Removed.StudentID)
	require.NotNil(t, result.Refund)
	assert.Equal(t, 1, result.Refund.Amount)
	assert.Equal(t, stuZ, result.Attendee.StudentID)
	assert.True(t, result.Attendee.CreditSpent)
	require.NotNil(t, result.Charge)
	assert.Equal(t, -1, result.Charge.Amount)

	assert.Equal(t, 1, f.balance(t, stuX))
	assert.Equal(t, 1, f.balance(t, stuZ))

	roster, err := f.roster.Get(ctx, orgA, classA)
	require.NoError(t, err)
	require.Len(t, roster.Attendees, 2)
	assert.Equal(t, stuY, roster.Attendees[0].StudentID)
	assert.Equal(t, stuZ, roster.Attendees[1].StudentID)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.displacements.WithLabelValues(OutcomeAccepted)))
}

func TestDisplacementRollsBackWhenChargeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, stuX, 1)
	x := f.enroll(t, stuX, true)
	f.enroll(t, stuY, false)

	_, err := f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{
		IncumbentAttendeeID: x.Attendee.ID,
		StudentID:           stuZ,
		UseCredit:           true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficient.Code, appErrors.FromError(err).Code)

	roster, err := f.roster.Get(ctx, orgA, classA)
	require.NoError(t, err)
	require.Len(t, roster.Attendees, 2)
	assert.Equal(t, x.Attendee.ID, roster.Attendees[0].ID)
	assert.Equal(t, 0, f.balance(t, stuX))
	assert.Equal(t, 0, f.cachedBalance(t, stuX))

	entries, _, err := f.ledger.History(ctx, orgA, stuX, 1, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.displacements.WithLabelValues(OutcomeRejected)))
}

func TestDisplacementRejectsTargetFromAnotherClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := "00000000-0000-0000-0000-0000000000c3"
	f.store.PutClassEvent(models.ClassEvent{ID: other, OrganizationID: orgA, Title: "Late", StartTime: time.Now(), DurationMinutes: 30, Capacity: 5})

	elsewhere, err := f.enrollments.Request(ctx, orgA, other, dto.EnrollmentRequest{StudentID: stuX})
	require.NoError(t, err)

	_, err = f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{IncumbentAttendeeID: elsewhere.Attendee.ID, StudentID: stuZ})
	assert.Equal(t, appErrors.ErrStaleTarget.Code, appErrors.FromError(err).Code)
}

func TestDisplacementValidatesTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.enroll(t, stuX, false)
	f.enroll(t, stuY, false)

	_, err := f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{IncumbentAttendeeID: x.Attendee.ID, StudentID: stuX})
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)

	_, err = f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{IncumbentAttendeeID: x.Attendee.ID, StudentID: stuY})
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)

	_, err = f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{IncumbentAttendeeID: noSuch, StudentID: stuZ})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.displacement.Resolve(ctx, orgA, classA, dto.DisplacementRequest{IncumbentAttendeeID: x.Attendee.ID, StudentID: stuB})
	assert.Equal(t, appErrors.ErrCrossTenant.Code, appErrors.FromError(err).Code)

	_, err = f.displacement.Resolve(ctx, orgB, classA, dto.DisplacementRequest{IncumbentAttendeeID: x.Attendee.ID, StudentID: stuZ})
	assert.Equal(t, appErrors.ErrCrossTenant.Code, appErrors.FromError(err).Code)

	roster, err := f.roster.Get(ctx, orgA, classA)
	require.NoError(t, err)
	assert.Len(t, roster.Attendees, 2)
}
