package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

func TestAttendanceUpdateStatusAllowsAnyKnownTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enrolled := f.enroll(t, stuX, false)

	for _, next := range []string{"PRESENT", "ABSENT", "SCHEDULED", "present"} {
		updated, err := f.attendance.UpdateStatus(ctx, orgA, enrolled.Attendee.ID, dto.UpdateAttendanceRequest{Status: next})
		require.NoError(t, err)
		parsed, _ := models.ParseAttendanceStatus(next)
		assert.Equal(t, parsed, updated.Status)
	}
}

func TestAttendanceUpdateStatusValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enrolled := f.enroll(t, stuX, false)

	_, err := f.attendance.UpdateStatus(ctx, orgA, enrolled.Attendee.ID, dto.UpdateAttendanceRequest{Status: "LATE"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.attendance.UpdateStatus(ctx, orgA, noSuch, dto.UpdateAttendanceRequest{Status: "PRESENT"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.attendance.UpdateStatus(ctx, orgB, enrolled.Attendee.ID, dto.UpdateAttendanceRequest{Status: "PRESENT"})
	assert.Equal(t, appErrors.ErrCrossTenant.Code, appErrors.FromError(err).Code)
}

func TestCanTransitionRejectsUnknownStates(t *testing.T) {
	assert.True(t, canTransition(models.AttendanceAbsent, models.AttendanceScheduled))
	assert.False(t, canTransition("LATE", models.AttendancePresent))
	assert.False(t, canTransition(models.AttendancePresent, "LATE"))
}

func TestAttendanceRemoveRefundsOnceThenNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, stuX, 1)
	enrolled := f.enroll(t, stuX, true)
	require.Equal(t, 0, f.balance(t, stuX))

	removed, err := f.attendance.Remove(ctx, orgA, enrolled.Attendee.ID)
	require.NoError(t, err)
	require.NotNil(t, removed.Refund)
	assert.Equal(t, models.CreditKindRefund, removed.Refund.Kind)
	assert.Equal(t, 1, removed.Refund.Amount)
	assert.Equal(t, 1, f.balance(t, stuX))

	_, err = f.attendance.Remove(ctx, orgA, enrolled.Attendee.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.balance(t, stuX))
	assert.Equal(t, 1, f.cachedBalance(t, stuX))
}

func TestAttendanceRemoveWithoutCreditDoesNotRefund(t *testing.T) {
	f := newFixture(t)
	enrolled := f.enroll(t, stuY, false)

	removed, err := f.attendance.Remove(context.Background(), orgA, enrolled.Attendee.ID)
	require.NoError(t, err)
	assert.Nil(t, removed.Refund)
	assert.Equal(t, 0, f.balance(t, stuY))
}

func TestAttendanceRemoveEnforcesTenant(t *testing.T) {
	f := newFixture(t)
	enrolled := f.enroll(t, stuY, false)

	_, err := f.attendance.Remove(context.Background(), orgB, enrolled.Attendee.ID)
	assert.Equal(t, appErrors.ErrCrossTenant.Code, appErrors.FromError(err).Code)

	roster, err := f.roster.Get(context.Background(), orgA, classA)
	require.NoError(t, err)
	assert.Len(t, roster.Attendees, 1)
}
