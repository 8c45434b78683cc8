package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/export"
)

const statementPageSize = 100

var statementHeaders = []string{"date", "kind", "amount", "balance", "reason"}

// StatementService renders a student's full credit ledger, oldest entry first.
type StatementService struct {
	store     repository.Store
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStatementService constructs a StatementService.
func NewStatementService(store repository.Store, validate *validator.Validate, logger *zap.Logger) *StatementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{store: store, validator: validate, logger: logger, now: time.Now}
}

// Render builds the statement in format ("csv" or "pdf"). Entries are read in one transaction.
func (s *StatementService) Render(ctx context.Context, organizationID, studentID, format string) (*dto.CreditStatement, error) {
	if err := validateID(s.validator, studentID, "student id"); err != nil {
		return nil, err
	}
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	var (
		student *models.Student
		entries []models.CreditTransaction
	)
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		if student, err = loadStudent(ctx, tx, organizationID, studentID); err != nil {
			return err
		}
		for page := 1; ; page++ {
			batch, total, err := tx.ListCreditTransactions(ctx, models.CreditTransactionFilter{StudentID: studentID, Page: page, PageSize: statementPageSize})
			if err != nil {
				return err
			}
			entries = append(entries, batch...)
			if len(batch) == 0 || len(entries) >= total {
				return nil
			}
		}
	})
	if err != nil {
		return nil, serviceError(err, "failed to load credit statement")
	}

	table := export.Table{
		Title:   fmt.Sprintf("Reposition credits - %s", student.Name),
		Headers: statementHeaders,
		Rows:    make([][]string, 0, len(entries)),
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		table.Rows = append(table.Rows, []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Kind),
			strconv.Itoa(e.Amount),
			strconv.Itoa(e.BalanceAfter),
			e.Reason,
		})
	}
	body, err := renderer.Render(table)
	if err != nil {
		s.logger.Error("render credit statement", zap.String("student_id", studentID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render credit statement")
	}
	return &dto.CreditStatement{
		Filename:    fmt.Sprintf("credits-%s-%s.%s", studentID, s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}
