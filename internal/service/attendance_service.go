package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

// AttendanceService owns the enrollment lifecycle: creation, status changes and removal with refund.
type AttendanceService struct {
	store     repository.Store
	ledger    *CreditLedger
	roster    *RosterService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService. roster may be nil.
func NewAttendanceService(store repository.Store, ledger *CreditLedger, roster *RosterService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{store: store, ledger: ledger, roster: roster, validator: validate, logger: logger}
}

// canTransition allows every move between known statuses; attendance may be corrected in any direction.
func canTransition(from, to models.AttendanceStatus) bool {
	return from.Valid() && to.Valid()
}

// Enroll inserts a SCHEDULED attendee. The caller holds the class lock and has granted the seat.
func (s *AttendanceService) Enroll(ctx context.Context, tx repository.Tx, class *models.ClassEvent, student *models.Student, creditSpent bool) (*models.ClassAttendee, error) {
	attendee := &models.ClassAttendee{
		ClassEventID:   class.ID,
		StudentID:      student.ID,
		Status:         models.AttendanceScheduled,
		CreditSpent:    creditSpent,
		OrganizationID: class.OrganizationID,
	}
	if err := tx.InsertAttendee(ctx, attendee); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttendee) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		return nil, err
	}
	return attendee, nil
}

// UpdateStatus moves an attendee to a new status.
func (s *AttendanceService) UpdateStatus(ctx context.Context, organizationID, attendeeID string, req dto.UpdateAttendanceRequest) (*models.ClassAttendee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	status, err := models.ParseAttendanceStatus(req.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance status")
	}
	if err := validateID(s.validator, attendeeID, "attendee id"); err != nil {
		return nil, err
	}

	var updated *models.ClassAttendee
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		attendee, err := s.lockAttendee(ctx, tx, organizationID, attendeeID)
		if err != nil {
			return err
		}
		if !canTransition(attendee.Status, status) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move attendee from %s to %s", attendee.Status, status))
		}
		if err := tx.UpdateAttendeeStatus(ctx, attendee.ID, status); err != nil {
			return notFoundOr(err, "attendee not found")
		}
		updated, err = tx.FindAttendee(ctx, attendee.ID)
		return err
	})
	if err != nil {
		return nil, serviceError(err, "failed to update attendance")
	}
	s.roster.Invalidate(ctx, organizationID, updated.ClassEventID)
	s.logger.Info("attendance updated", zap.String("attendee_id", attendeeID), zap.String("status", string(status)))
	return updated, nil
}

// Remove deletes an enrollment and refunds the credit it spent. Removing it again reports NOT_FOUND.
func (s *AttendanceService) Remove(ctx context.Context, organizationID, attendeeID string) (*dto.RemovalResult, error) {
	if err := validateID(s.validator, attendeeID, "attendee id"); err != nil {
		return nil, err
	}
	var result dto.RemovalResult
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		attendee, err := s.lockAttendee(ctx, tx, organizationID, attendeeID)
		if err != nil {
			return err
		}
		refund, err := s.remove(ctx, tx, attendee, "enrollment removed")
		if err != nil {
			return err
		}
		result = dto.RemovalResult{Attendee: *attendee, Refund: refund}
		return nil
	})
	if err != nil {
		return nil, serviceError(err, "failed to remove attendee")
	}
	if result.Refund != nil {
		s.ledger.record(models.CreditKindRefund, nil)
	}
	s.roster.Invalidate(ctx, organizationID, result.Attendee.ClassEventID)
	s.logger.Info("attendee removed", zap.String("attendee_id", attendeeID), zap.Bool("refunded", result.Refund != nil))
	return &result, nil
}

// remove deletes attendee and refunds a spent credit. The caller holds the class lock.
func (s *AttendanceService) remove(ctx context.Context, tx repository.Tx, attendee *models.ClassAttendee, reason string) (*models.CreditTransaction, error) {
	var refund *models.CreditTransaction
	if attendee.CreditSpent {
		student, err := loadStudent(ctx, tx, attendee.OrganizationID, attendee.StudentID)
		if err != nil {
			return nil, err
		}
		attendeeID := attendee.ID
		refund, err = s.ledger.apply(ctx, tx, student, 1, models.CreditKindRefund, reason, &attendeeID)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.DeleteAttendee(ctx, attendee.ID); err != nil {
		return nil, notFoundOr(err, "attendee not found")
	}
	return refund, nil
}

// lockAttendee locks the attendee's class and re-reads the attendee under that lock.
func (s *AttendanceService) lockAttendee(ctx context.Context, tx repository.Tx, organizationID, attendeeID string) (*models.ClassAttendee, error) {
	attendee, err := tx.FindAttendee(ctx, attendeeID)
	if err != nil {
		return nil, notFoundOr(err, "attendee not found")
	}
	if err := ensureSameOrganization(organizationID, attendee.OrganizationID, "attendee"); err != nil {
		return nil, err
	}
	if _, err := tx.LockClassEvent(ctx, attendee.ClassEventID); err != nil {
		return nil, notFoundOr(err, "class event not found")
	}
	attendee, err = tx.FindAttendee(ctx, attendeeID)
	if err != nil {
		return nil, notFoundOr(err, "attendee not found")
	}
	return attendee, nil
}
