package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

// OrganizationScope resolves the caller's selected organization and guards the tenant boundary.
type OrganizationScope struct {
	store     repository.Store
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrganizationScope constructs an OrganizationScope.
func NewOrganizationScope(store repository.Store, validate *validator.Validate, logger *zap.Logger) *OrganizationScope {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationScope{store: store, validator: validate, logger: logger}
}

// Resolve returns the organization selected for the current request.
func (s *OrganizationScope) Resolve(selected string) (string, error) {
	id := strings.TrimSpace(selected)
	if id == "" {
		return "", appErrors.Clone(appErrors.ErrNoOrganization, "")
	}
	if err := validateID(s.validator, id, "organization id"); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateAccess reports whether the user belongs to the organization.
func (s *OrganizationScope) ValidateAccess(ctx context.Context, organizationID, userID string) (bool, error) {
	var member bool
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.FindMembership(ctx, organizationID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		member = true
		return nil
	})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check organization membership")
	}
	return member, nil
}

// Authorize resolves the selected organization and returns the user's membership in it.
// Unknown organizations and non-members are both rejected as forbidden.
func (s *OrganizationScope) Authorize(ctx context.Context, selected, userID string) (*models.Membership, error) {
	orgID, err := s.Resolve(selected)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing user identity")
	}

	var member *models.Membership
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.FindOrganization(ctx, orgID); err != nil {
			return err
		}
		var err error
		member, err = tx.FindMembership(ctx, orgID, userID)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("organization access denied", zap.String("organization_id", orgID), zap.String("user_id", userID))
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user is not a member of the selected organization")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to authorize organization")
	}
	return member, nil
}

func ensureSameOrganization(scope, owner, resource string) error {
	if scope != owner {
		return appErrors.Clone(appErrors.ErrCrossTenant, fmt.Sprintf("%s belongs to another organization", resource))
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return err
}

// serviceError passes typed errors through and wraps anything else as internal.
func serviceError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validateID(validate *validator.Validate, id, field string) error {
	if err := validate.Var(id, "required,uuid"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, field+" must be a uuid")
	}
	return nil
}

func loadStudent(ctx context.Context, tx repository.Tx, organizationID, studentID string) (*models.Student, error) {
	student, err := tx.FindStudent(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found")
	}
	if err := ensureSameOrganization(organizationID, student.OrganizationID, "student"); err != nil {
		return nil, err
	}
	return student, nil
}
