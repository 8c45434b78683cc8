package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/reposition-api/internal/models"
)

const uniqueViolation = "23505"

// QueryObserver receives query timings; MetricsService satisfies it.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// PostgresStore implements Store on PostgreSQL with row-level locks.
type PostgresStore struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewPostgresStore constructs the store. observer may be nil.
func NewPostgresStore(db *sqlx.DB, observer QueryObserver) *PostgresStore {
	return &PostgresStore{db: db, observer: observer}
}

// WithinTx runs fn inside a database transaction, committing only when fn succeeds.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: tx, observer: s.observer}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx       *sqlx.Tx
	observer QueryObserver
}

func (t *pgTx) observe(label string, start time.Time) {
	if t.observer != nil {
		t.observer.ObserveDBQuery(label, time.Since(start))
	}
}

func (t *pgTx) FindOrganization(ctx context.Context, id string) (*models.Organization, error) {
	defer t.observe("find_organization", time.Now())
	const query = `SELECT id, name, created_at FROM organizations WHERE id = $1`
	var org models.Organization
	if err := t.tx.GetContext(ctx, &org, query, id); err != nil {
		return nil, wrapNotFound(err, "find organization")
	}
	return &org, nil
}

func (t *pgTx) FindMembership(ctx context.Context, organizationID, userID string) (*models.Membership, error) {
	defer t.observe("find_membership", time.Now())
	const query = `SELECT organization_id, user_id, role FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	var member models.Membership
	if err := t.tx.GetContext(ctx, &member, query, organizationID, userID); err != nil {
		return nil, wrapNotFound(err, "find membership")
	}
	return &member, nil
}

func (t *pgTx) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	defer t.observe("find_student", time.Now())
	const query = `SELECT id, organization_id, name, enrollment_type, reposition_credits, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := t.tx.GetContext(ctx, &student, query, id); err != nil {
		return nil, wrapNotFound(err, "find student")
	}
	return &student, nil
}

// LockStudents takes FOR UPDATE locks in ascending id order. A missing id yields sql.ErrNoRows.
func (t *pgTx) LockStudents(ctx context.Context, ids ...string) error {
	defer t.observe("lock_students", time.Now())
	ordered := SortedUnique(ids)
	if len(ordered) == 0 {
		return nil
	}
	const query = `SELECT id FROM students WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var locked []string
	if err := t.tx.SelectContext(ctx, &locked, query, pq.Array(ordered)); err != nil {
		return fmt.Errorf("lock students: %w", err)
	}
	if len(locked) != len(ordered) {
		return sql.ErrNoRows
	}
	return nil
}

func (t *pgTx) FindClassEvent(ctx context.Context, id string) (*models.ClassEvent, error) {
	defer t.observe("find_class_event", time.Now())
	const query = `SELECT id, organization_id, title, start_time, duration_minutes, capacity, notes, created_at FROM class_events WHERE id = $1`
	var class models.ClassEvent
	if err := t.tx.GetContext(ctx, &class, query, id); err != nil {
		return nil, wrapNotFound(err, "find class event")
	}
	return &class, nil
}

// LockClassEvent is the per-class critical section: concurrent admissions to the class queue here.
func (t *pgTx) LockClassEvent(ctx context.Context, id string) (*models.ClassEvent, error) {
	defer t.observe("lock_class_event", time.Now())
	const query = `SELECT id, organization_id, title, start_time, duration_minutes, capacity, notes, created_at FROM class_events WHERE id = $1 FOR UPDATE`
	var class models.ClassEvent
	if err := t.tx.GetContext(ctx, &class, query, id); err != nil {
		return nil, wrapNotFound(err, "lock class event")
	}
	return &class, nil
}

const attendeeColumns = `a.id, a.class_event_id, a.student_id, a.status, a.credit_spent, a.created_at, a.updated_at, c.organization_id`

func (t *pgTx) FindAttendee(ctx context.Context, id string) (*models.ClassAttendee, error) {
	defer t.observe("find_attendee", time.Now())
	query := `SELECT ` + attendeeColumns + ` FROM class_attendees a JOIN class_events c ON c.id = a.class_event_id WHERE a.id = $1`
	var attendee models.ClassAttendee
	if err := t.tx.GetContext(ctx, &attendee, query, id); err != nil {
		return nil, wrapNotFound(err, "find attendee")
	}
	return &attendee, nil
}

func (t *pgTx) ListAttendees(ctx context.Context, classEventID string) ([]models.ClassAttendee, error) {
	defer t.observe("list_attendees", time.Now())
	query := `SELECT ` + attendeeColumns + ` FROM class_attendees a JOIN class_events c ON c.id = a.class_event_id
WHERE a.class_event_id = $1 ORDER BY a.created_at, a.id`
	var attendees []models.ClassAttendee
	if err := t.tx.SelectContext(ctx, &attendees, query, classEventID); err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}

func (t *pgTx) CountOccupancy(ctx context.Context, classEventID string, statuses []models.AttendanceStatus) (int, error) {
	defer t.observe("count_occupancy", time.Now())
	if len(statuses) == 0 {
		return 0, nil
	}
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	const query = `SELECT COUNT(*) FROM class_attendees WHERE class_event_id = $1 AND status = ANY($2)`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, classEventID, pq.Array(values)); err != nil {
		return 0, fmt.Errorf("count occupancy: %w", err)
	}
	return count, nil
}

func (t *pgTx) AttendeeExists(ctx context.Context, classEventID, studentID string) (bool, error) {
	defer t.observe("attendee_exists", time.Now())
	const query = `SELECT 1 FROM class_attendees WHERE class_event_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := t.tx.GetContext(ctx, &exists, query, classEventID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check attendee: %w", err)
	}
	return true, nil
}

func (t *pgTx) InsertAttendee(ctx context.Context, attendee *models.ClassAttendee) error {
	defer t.observe("insert_attendee", time.Now())
	if attendee.ID == "" {
		attendee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if attendee.CreatedAt.IsZero() {
		attendee.CreatedAt = now
	}
	attendee.UpdatedAt = attendee.CreatedAt
	if attendee.Status == "" {
		attendee.Status = models.AttendanceScheduled
	}
	const query = `INSERT INTO class_attendees (id, class_event_id, student_id, status, credit_spent, created_at, updated_at)
VALUES (:id, :class_event_id, :student_id, :status, :credit_spent, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, attendee); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateAttendee
		}
		return fmt.Errorf("insert attendee: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAttendeeStatus(ctx context.Context, id string, status models.AttendanceStatus) error {
	defer t.observe("update_attendee_status", time.Now())
	const query = `UPDATE class_attendees SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendee status: %w", err)
	}
	return requireAffected(res)
}

func (t *pgTx) DeleteAttendee(ctx context.Context, id string) error {
	defer t.observe("delete_attendee", time.Now())
	const query = `DELETE FROM class_attendees WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}
	return requireAffected(res)
}

func (t *pgTx) SumCredits(ctx context.Context, studentID string) (int, error) {
	defer t.observe("sum_credits", time.Now())
	const query = `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE student_id = $1`
	var total int
	if err := t.tx.GetContext(ctx, &total, query, studentID); err != nil {
		return 0, fmt.Errorf("sum credits: %w", err)
	}
	return total, nil
}

func (t *pgTx) AppendCreditTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	defer t.observe("append_credit_transaction", time.Now())
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO credit_transactions (id, organization_id, student_id, amount, kind, reason, attendee_id, balance_after, created_at)
VALUES (:id, :organization_id, :student_id, :amount, :kind, :reason, :attendee_id, :balance_after, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("append credit transaction: %w", err)
	}
	return nil
}

func (t *pgTx) SetCachedCredits(ctx context.Context, studentID string, value int) error {
	defer t.observe("set_cached_credits", time.Now())
	const query = `UPDATE students SET reposition_credits = $2 WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, studentID, value)
	if err != nil {
		return fmt.Errorf("set cached credits: %w", err)
	}
	return requireAffected(res)
}

func (t *pgTx) ListCreditTransactions(ctx context.Context, filter models.CreditTransactionFilter) ([]models.CreditTransaction, int, error) {
	defer t.observe("list_credit_transactions", time.Now())
	page, size := NormalizePage(filter.Page, filter.PageSize)
	const query = `SELECT id, organization_id, student_id, amount, kind, reason, attendee_id, balance_after, created_at
FROM credit_transactions WHERE student_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	var items []models.CreditTransaction
	if err := t.tx.SelectContext(ctx, &items, query, filter.StudentID, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list credit transactions: %w", err)
	}
	const countQuery = `SELECT COUNT(*) FROM credit_transactions WHERE student_id = $1`
	var total int
	if err := t.tx.GetContext(ctx, &total, countQuery, filter.StudentID); err != nil {
		return nil, 0, fmt.Errorf("count credit transactions: %w", err)
	}
	return items, total, nil
}

// ListDriftedStudents returns students whose cached balance differs from their ledger sum.
func (t *pgTx) ListDriftedStudents(ctx context.Context, limit int) ([]string, error) {
	defer t.observe("list_drifted_students", time.Now())
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT s.id FROM students s
LEFT JOIN (SELECT student_id, SUM(amount) AS total FROM credit_transactions GROUP BY student_id) t ON t.student_id = s.id
WHERE s.reposition_credits <> COALESCE(t.total, 0)
ORDER BY s.id LIMIT $1`
	var ids []string
	if err := t.tx.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("list drifted students: %w", err)
	}
	return ids, nil
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sql.ErrNoRows
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
