package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/ids"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

// CreditLedger owns reposition-credit balances. Every balance change is an appended ledger
// entry written together with the student's cached balance, under the student's row lock.
type CreditLedger struct {
	store     repository.Store
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCreditLedger constructs a CreditLedger.
func NewCreditLedger(store repository.Store, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CreditLedger {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditLedger{store: store, metrics: metrics, validator: validate, logger: logger}
}

// Balance returns the student's balance as summed from the ledger.
func (l *CreditLedger) Balance(ctx context.Context, organizationID, studentID string) (*dto.CreditBalance, error) {
	if err := validateID(l.validator, studentID, "student id"); err != nil {
		return nil, err
	}
	var balance int
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := loadStudent(ctx, tx, organizationID, studentID); err != nil {
			return err
		}
		var err error
		balance, err = tx.SumCredits(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, serviceError(err, "failed to load credit balance")
	}
	return &dto.CreditBalance{StudentID: studentID, Balance: balance}, nil
}

// Adjust writes a manual ledger entry. Amount may be positive or negative but never zero.
func (l *CreditLedger) Adjust(ctx context.Context, organizationID, studentID string, req dto.CreditAdjustmentRequest) (*dto.CreditAdjustmentResult, error) {
	if err := l.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit adjustment payload")
	}
	return l.write(ctx, organizationID, studentID, req.Amount, models.CreditKindManual, req.Reason)
}

// Consume spends one credit. It fails with INSUFFICIENT_CREDITS rather than going negative.
func (l *CreditLedger) Consume(ctx context.Context, organizationID, studentID, reason string) (*dto.CreditAdjustmentResult, error) {
	return l.write(ctx, organizationID, studentID, -1, models.CreditKindConsume, reason)
}

// Refund returns one credit.
func (l *CreditLedger) Refund(ctx context.Context, organizationID, studentID, reason string) (*dto.CreditAdjustmentResult, error) {
	return l.write(ctx, organizationID, studentID, 1, models.CreditKindRefund, reason)
}

// History pages through the student's ledger, newest entry first.
func (l *CreditLedger) History(ctx context.Context, organizationID, studentID string, page, size int) ([]models.CreditTransaction, *models.Pagination, error) {
	if err := validateID(l.validator, studentID, "student id"); err != nil {
		return nil, nil, err
	}
	page, size = repository.NormalizePage(page, size)
	var (
		entries []models.CreditTransaction
		total   int
	)
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := loadStudent(ctx, tx, organizationID, studentID); err != nil {
			return err
		}
		var err error
		entries, total, err = tx.ListCreditTransactions(ctx, models.CreditTransactionFilter{StudentID: studentID, Page: page, PageSize: size})
		return err
	})
	if err != nil {
		return nil, nil, serviceError(err, "failed to list credit transactions")
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (l *CreditLedger) write(ctx context.Context, organizationID, studentID string, amount int, kind models.CreditTransactionKind, reason string) (*dto.CreditAdjustmentResult, error) {
	if err := validateID(l.validator, studentID, "student id"); err != nil {
		return nil, err
	}
	var entry *models.CreditTransaction
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		student, err := loadStudent(ctx, tx, organizationID, studentID)
		if err != nil {
			return err
		}
		entry, err = l.apply(ctx, tx, student, amount, kind, reason, nil)
		return err
	})
	l.record(kind, err)
	if err != nil {
		return nil, serviceError(err, "failed to write credit transaction")
	}
	l.logger.Info("credit ledger updated",
		zap.String("student_id", studentID),
		zap.String("kind", string(kind)),
		zap.Int("amount", amount),
		zap.Int("balance", entry.BalanceAfter),
	)
	return &dto.CreditAdjustmentResult{Transaction: *entry, Balance: entry.BalanceAfter}, nil
}

// apply appends one entry inside an open transaction. Callers holding a class lock take it
// before this student lock; the student must already be checked against the organization.
func (l *CreditLedger) apply(ctx context.Context, tx repository.Tx, student *models.Student, amount int, kind models.CreditTransactionKind, reason string, attendeeID *string) (*models.CreditTransaction, error) {
	if amount == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credit amount must not be zero")
	}
	if err := tx.LockStudents(ctx, student.ID); err != nil {
		return nil, notFoundOr(err, "student not found")
	}
	balance, err := tx.SumCredits(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	next := balance + amount
	if next < 0 {
		return nil, appErrors.Clone(appErrors.ErrInsufficient, fmt.Sprintf("student has %d reposition credits", balance))
	}

	entry := &models.CreditTransaction{
		ID:             ids.NewLedgerID(),
		OrganizationID: student.OrganizationID,
		StudentID:      student.ID,
		Amount:         amount,
		Kind:           kind,
		Reason:         reason,
		AttendeeID:     attendeeID,
		BalanceAfter:   next,
	}
	if err := tx.AppendCreditTransaction(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.SetCachedCredits(ctx, student.ID, next); err != nil {
		return nil, err
	}
	return entry, nil
}

func (l *CreditLedger) record(kind models.CreditTransactionKind, err error) {
	switch {
	case err == nil:
		l.metrics.RecordCreditAdjustment(string(kind), OutcomeAccepted)
	case errors.Is(err, appErrors.ErrInsufficient):
		l.metrics.RecordCreditAdjustment(string(kind), OutcomeRejected)
	default:
		l.metrics.RecordCreditAdjustment(string(kind), OutcomeFailed)
	}
}
