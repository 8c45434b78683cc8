package dto

import "github.com/noah-isme/reposition-api/internal/models"

// CreditAdjustmentRequest is a manual ledger entry issued by staff.
type CreditAdjustmentRequest struct {
	Amount int    `json:"amount" validate:"required,ne=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// CreditBalance is a student's current reposition-credit balance.
type CreditBalance struct {
	StudentID string `json:"student_id"`
	Balance   int    `json:"balance"`
}

// CreditAdjustmentResult pairs a written ledger entry with the resulting balance.
type CreditAdjustmentResult struct {
	Transaction models.CreditTransaction `json:"transaction"`
	Balance     int                      `json:"balance"`
}

// ReconcileResult reports whether a reconciliation job was queued.
type ReconcileResult struct {
	StudentID string `json:"student_id"`
	Queued    bool   `json:"queued"`
}

// CreditStatement is a rendered ledger statement ready for download.
type CreditStatement struct {
	Filename    string
	ContentType string
	Body        []byte
}
