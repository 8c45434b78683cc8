package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

// DisplacementResolver swaps an incumbent attendee of a full class for another student.
type DisplacementResolver struct {
	store      repository.Store
	capacity   *CapacityManager
	attendance *AttendanceService
	ledger     *CreditLedger
	roster     *RosterService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewDisplacementResolver constructs a DisplacementResolver.
func NewDisplacementResolver(store repository.Store, capacity *CapacityManager, attendance *AttendanceService, ledger *CreditLedger, roster *RosterService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *DisplacementResolver {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisplacementResolver{
		store:      store,
		capacity:   capacity,
		attendance: attendance,
		ledger:     ledger,
		roster:     roster,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Resolve removes the incumbent (refunding a spent credit) and enrolls the new student
// (charging one if requested) in a single transaction. Any failure leaves both untouched.
func (r *DisplacementResolver) Resolve(ctx context.Context, organizationID, classEventID string, req dto.DisplacementRequest) (*dto.DisplacementResult, error) {
	if err := r.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid displacement payload")
	}
	if err := validateID(r.validator, classEventID, "class event id"); err != nil {
		return nil, err
	}

	var result dto.DisplacementResult
	err := r.store.WithinTx(ctx, func(tx repository.Tx) error {
		class, err := tx.LockClassEvent(ctx, classEventID)
		if err != nil {
			return notFoundOr(err, "class event not found")
		}
		if err := ensureSameOrganization(organizationID, class.OrganizationID, "class event"); err != nil {
			return err
		}

		incumbent, err := tx.FindAttendee(ctx, req.IncumbentAttendeeID)
		if err != nil {
			return notFoundOr(err, "attendee not found")
		}
		if err := ensureSameOrganization(organizationID, incumbent.OrganizationID, "attendee"); err != nil {
			return err
		}
		if incumbent.ClassEventID != class.ID {
			return appErrors.Clone(appErrors.ErrStaleTarget, "")
		}
		if incumbent.StudentID == req.StudentID {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already holds this seat")
		}

		student, err := loadStudent(ctx, tx, organizationID, req.StudentID)
		if err != nil {
			return err
		}
		// Both credit writes below touch student rows; take them together, in id order.
		if err := tx.LockStudents(ctx, incumbent.StudentID, student.ID); err != nil {
			return notFoundOr(err, "student not found")
		}

		refund, err := r.attendance.remove(ctx, tx, incumbent, "displaced from class")
		if err != nil {
			return err
		}
		decision, err := r.capacity.RequestSeat(ctx, tx, organizationID, class.ID, student.ID)
		if err != nil {
			return err
		}
		if !decision.Accepted {
			return appErrors.Clone(appErrors.ErrClassFull, "class is still full after displacement")
		}
		attendee, err := r.attendance.Enroll(ctx, tx, decision.Class, student, req.UseCredit)
		if err != nil {
			return err
		}
		result = dto.DisplacementResult{Removed: *incumbent, Refund: refund, Attendee: *attendee}
		if req.UseCredit {
			attendeeID := attendee.ID
			charge, err := r.ledger.apply(ctx, tx, student, -1, models.CreditKindConsume, "reposition class", &attendeeID)
			if err != nil {
				return err
			}
			result.Charge = charge
		}
		return nil
	})
	if err != nil {
		outcome := OutcomeFailed
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			outcome = OutcomeRejected
		}
		r.metrics.RecordDisplacement(outcome)
		r.logger.Info("displacement rolled back", zap.String("class_event_id", classEventID), zap.String("incumbent_attendee_id", req.IncumbentAttendeeID), zap.Error(err))
		return nil, serviceError(err, "failed to resolve displacement")
	}

	r.metrics.RecordDisplacement(OutcomeAccepted)
	if result.Refund != nil {
		r.ledger.record(models.CreditKindRefund, nil)
	}
	if result.Charge != nil {
		r.ledger.record(models.CreditKindConsume, nil)
	}
	r.roster.Invalidate(ctx, organizationID, classEventID)
	r.logger.Info("attendee displaced",
		zap.String("class_event_id", classEventID),
		zap.String("removed_attendee_id", result.Removed.ID),
		zap.String("attendee_id", result.Attendee.ID),
	)
	return &result, nil
}
