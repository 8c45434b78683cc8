package models

import "time"

// CreditTransactionKind tags why a ledger entry exists.
type CreditTransactionKind string

const (
	CreditKindManual  CreditTransactionKind = "MANUAL"
	CreditKindConsume CreditTransactionKind = "CONSUME"
	CreditKindRefund  CreditTransactionKind = "REFUND"
)

// CreditTransaction is one append-only entry in a student's reposition-credit ledger.
// The balance is the sum of Amount over all entries of the student.
type CreditTransaction struct {
	ID             string                `db:"id" json:"id"`
	OrganizationID string                `db:"organization_id" json:"organization_id"`
	StudentID      string                `db:"student_id" json:"student_id"`
	Amount         int                   `db:"amount" json:"amount"`
	Kind           CreditTransactionKind `db:"kind" json:"kind"`
	Reason         string                `db:"reason" json:"reason"`
	AttendeeID     *string               `db:"attendee_id" json:"attendee_id,omitempty"`
	BalanceAfter   int                   `db:"balance_after" json:"balance_after"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
}

// CreditTransactionFilter pages through a student's ledger, newest first.
type CreditTransactionFilter struct {
	StudentID string
	Page      int
	PageSize  int
}
