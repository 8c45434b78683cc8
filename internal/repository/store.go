package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/noah-isme/reposition-api/internal/models"
)

// ErrDuplicateAttendee is returned when a student already holds an enrollment in the class.
var ErrDuplicateAttendee = errors.New("attendee already exists for class and student")

// Missing rows are reported as sql.ErrNoRows by every Store implementation.

// Store opens transactions against the attendance and credit tables.
type Store interface {
	// WithinTx runs fn in one transaction. A non-nil error from fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transaction.
//
// Locking rules: a transaction locks at most one class event and always before any student;
// students are locked together through LockStudents, which takes them in ascending id order.
// Attendee writes require the owning class lock, credit writes require the student lock.
type Tx interface {
	FindOrganization(ctx context.Context, id string) (*models.Organization, error)
	FindMembership(ctx context.Context, organizationID, userID string) (*models.Membership, error)

	FindStudent(ctx context.Context, id string) (*models.Student, error)
	LockStudents(ctx context.Context, ids ...string) error

	FindClassEvent(ctx context.Context, id string) (*models.ClassEvent, error)
	LockClassEvent(ctx context.Context, id string) (*models.ClassEvent, error)

	FindAttendee(ctx context.Context, id string) (*models.ClassAttendee, error)
	ListAttendees(ctx context.Context, classEventID string) ([]models.ClassAttendee, error)
	CountOccupancy(ctx context.Context, classEventID string, statuses []models.AttendanceStatus) (int, error)
	AttendeeExists(ctx context.Context, classEventID, studentID string) (bool, error)
	InsertAttendee(ctx context.Context, attendee *models.ClassAttendee) error
	UpdateAttendeeStatus(ctx context.Context, id string, status models.AttendanceStatus) error
	DeleteAttendee(ctx context.Context, id string) error

	SumCredits(ctx context.Context, studentID string) (int, error)
	AppendCreditTransaction(ctx context.Context, txn *models.CreditTransaction) error
	SetCachedCredits(ctx context.Context, studentID string, value int) error
	ListCreditTransactions(ctx context.Context, filter models.CreditTransactionFilter) ([]models.CreditTransaction, int, error)
	ListDriftedStudents(ctx context.Context, limit int) ([]string, error)
}

// SortedUnique returns ids deduplicated in ascending order, the order student locks are taken in.
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NormalizePage clamps page and size the way every list endpoint does.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
