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

// EnrollmentService admits students into class events, charging a credit when asked to.
type EnrollmentService struct {
	store      repository.Store
	capacity   *CapacityManager
	attendance *AttendanceService
	ledger     *CreditLedger
	roster     *RosterService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(store repository.Store, capacity *CapacityManager, attendance *AttendanceService, ledger *CreditLedger, roster *RosterService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
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

// Request asks for a seat in the class. A full class is an outcome, not an error: the result
// lists the occupants so the caller can offer a displacement. Seat, enrollment and charge
// commit together or not at all.
func (s *EnrollmentService) Request(ctx context.Context, organizationID, classEventID string, req dto.EnrollmentRequest) (*dto.EnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if err := validateID(s.validator, classEventID, "class event id"); err != nil {
		return nil, err
	}

	var result *dto.EnrollmentResult
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		student, err := loadStudent(ctx, tx, organizationID, req.StudentID)
		if err != nil {
			return err
		}
		decision, err := s.capacity.RequestSeat(ctx, tx, organizationID, classEventID, student.ID)
		if err != nil {
			return err
		}
		if !decision.Accepted {
			result = &dto.EnrollmentResult{Outcome: dto.EnrollmentFull, Occupants: decision.Occupants}
			return nil
		}

		attendee, err := s.attendance.Enroll(ctx, tx, decision.Class, student, req.UseCredit)
		if err != nil {
			return err
		}
		result = &dto.EnrollmentResult{Outcome: dto.EnrollmentAccepted, Attendee: attendee}
		if req.UseCredit {
			attendeeID := attendee.ID
			charge, err := s.ledger.apply(ctx, tx, student, -1, models.CreditKindConsume, "reposition class", &attendeeID)
			if err != nil {
				return err
			}
			result.Charge = charge
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordEnrollment(OutcomeRejected)
		if req.UseCredit && errors.Is(err, appErrors.ErrInsufficient) {
			s.ledger.record(models.CreditKindConsume, err)
		}
		return nil, serviceError(err, "failed to request enrollment")
	}

	if result.Outcome == dto.EnrollmentFull {
		s.metrics.RecordEnrollment(OutcomeFull)
		s.logger.Info("class full", zap.String("class_event_id", classEventID), zap.Int("occupants", len(result.Occupants)))
		return result, nil
	}

	s.metrics.RecordEnrollment(OutcomeAccepted)
	if result.Charge != nil {
		s.ledger.record(models.CreditKindConsume, nil)
	}
	s.roster.Invalidate(ctx, organizationID, classEventID)
	s.logger.Info("student enrolled",
		zap.String("class_event_id", classEventID),
		zap.String("student_id", req.StudentID),
		zap.String("attendee_id", result.Attendee.ID),
		zap.Bool("credit_spent", req.UseCredit),
	)
	return result, nil
}
