package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/response"
)

type creditLedgerService interface {
	Balance(ctx context.Context, organizationID, studentID string) (*dto.CreditBalance, error)
	Adjust(ctx context.Context, organizationID, studentID string, req dto.CreditAdjustmentRequest) (*dto.CreditAdjustmentResult, error)
	History(ctx context.Context, organizationID, studentID string, page, size int) ([]models.CreditTransaction, *models.Pagination, error)
}

type creditReconciler interface {
	Enqueue(ctx context.Context, organizationID, studentID string) (*dto.ReconcileResult, error)
}

type creditStatementService interface {
	Render(ctx context.Context, organizationID, studentID, format string) (*dto.CreditStatement, error)
}

// CreditHandler exposes reposition-credit endpoints of a student.
type CreditHandler struct {
	ledger     creditLedgerService
	reconciler creditReconciler
	statements creditStatementService
}

// NewCreditHandler constructs CreditHandler.
func NewCreditHandler(ledger creditLedgerService, reconciler creditReconciler, statements creditStatementService) *CreditHandler {
	return &CreditHandler{ledger: ledger, reconciler: reconciler, statements: statements}
}

// Balance godoc
// @Summary Get a student's reposition-credit balance
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits [get]
func (h *CreditHandler) Balance(c *gin.Context) {
	balance, err := h.ledger.Balance(c.Request.Context(), organizationFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balance)
}

// Adjust godoc
// @Summary Grant or withdraw reposition credits
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Param payload body dto.CreditAdjustmentRequest true "Adjustment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/credits [post]
func (h *CreditHandler) Adjust(c *gin.Context) {
	var req dto.CreditAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit adjustment payload"))
		return
	}
	result, err := h.ledger.Adjust(c.Request.Context(), organizationFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// History godoc
// @Summary List a student's ledger entries, newest first
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits/transactions [get]
func (h *CreditHandler) History(c *gin.Context) {
	entries, pagination, err := h.ledger.History(c.Request.Context(), organizationFromContext(c), c.Param("id"), queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Reconcile godoc
// @Summary Queue a check of the student's cached balance against the ledger
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Success 202 {object} response.Envelope
// @Router /students/{id}/credits/reconcile [post]
func (h *CreditHandler) Reconcile(c *gin.Context) {
	result, err := h.reconciler.Enqueue(c.Request.Context(), organizationFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Statement godoc
// @Summary Download the student's full credit ledger
// @Tags Credits
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param X-Organization-ID header string true "Selected organization"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /students/{id}/credits/statement [get]
func (h *CreditHandler) Statement(c *gin.Context) {
	statement, err := h.statements.Render(c.Request.Context(), organizationFromContext(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", statement.Filename))
	c.Data(http.StatusOK, statement.ContentType, statement.Body)
}
