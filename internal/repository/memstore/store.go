// Package memstore keeps the attendance and credit tables in process memory.
// It follows the same locking contract as the PostgreSQL store, so it is safe for concurrent use.
// Attendee and ledger reads take the key lock a write to the same rows would need and keep it
// until the transaction ends, so no transaction observes rows another has not committed.
package memstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
)

// ErrLockNotHeld flags a write attempted without the lock the contract requires.
var ErrLockNotHeld = errors.New("memstore: write without required lock")

type (
	// Store is an in-memory repository.Store.
	Store struct {
		mu        sync.RWMutex
		orgs      map[string]models.Organization
		members   map[string]models.Membership
		students  map[string]models.Student
		classes   map[string]models.ClassEvent
		attendees map[string]models.ClassAttendee
		credits   map[string][]models.CreditTransaction
		seq       uint64
		order     map[string]uint64

		locks *keyedLocks
	}

	keyedLocks struct {
		mu    sync.Mutex
		slots map[string]chan struct{}
	}
)

// New returns an empty store.
func New() *Store {
	return &Store{
		orgs:      make(map[string]models.Organization),
		members:   make(map[string]models.Membership),
		students:  make(map[string]models.Student),
		classes:   make(map[string]models.ClassEvent),
		attendees: make(map[string]models.ClassAttendee),
		credits:   make(map[string][]models.CreditTransaction),
		order:     make(map[string]uint64),
		locks:     &keyedLocks{slots: make(map[string]chan struct{})},
	}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

func (k *keyedLocks) acquire(ctx context.Context, key string) error {
	select {
	case k.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyedLocks) release(key string) {
	<-k.slot(key)
}

// WithinTx runs fn holding whatever locks it takes until it returns; a failed fn is undone.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	tx := &memTx{store: s, held: make(map[string]struct{})}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			tx.releaseAll()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
		tx.releaseAll()
	}()
	return fn(tx)
}

// PutOrganization seeds an organization.
func (s *Store) PutOrganization(org models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	s.orgs[org.ID] = org
}

// PutMembership seeds a membership.
func (s *Store) PutMembership(member models.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(member.OrganizationID, member.UserID)] = member
}

// PutStudent seeds a student. RepositionCredits is ignored; balances come from the ledger.
func (s *Store) PutStudent(student models.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	student.RepositionCredits = sumOf(s.credits[student.ID])
	s.students[student.ID] = student
}

// PutClassEvent seeds a class event.
func (s *Store) PutClassEvent(class models.ClassEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	s.classes[class.ID] = class
}

// CorruptCachedCredits overwrites a student's projection without a ledger entry; used to exercise reconciliation.
func (s *Store) CorruptCachedCredits(studentID string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if student, ok := s.students[studentID]; ok {
		student.RepositionCredits = value
		s.students[studentID] = student
	}
}

type memTx struct {
	store *Store
	held  map[string]struct{}
	keys  []string
	undo  []func()
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	t.keys = append(t.keys, key)
	return nil
}

func (t *memTx) holds(key string) bool {
	_, ok := t.held[key]
	return ok
}

func (t *memTx) releaseAll() {
	for i := len(t.keys) - 1; i >= 0; i-- {
		t.store.locks.release(t.keys[i])
	}
	t.keys = nil
	t.held = map[string]struct{}{}
}

func (t *memTx) rollback() {
	if len(t.undo) == 0 {
		return
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) FindOrganization(ctx context.Context, id string) (*models.Organization, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	org, ok := t.store.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &org, nil
}

func (t *memTx) FindMembership(ctx context.Context, organizationID, userID string) (*models.Membership, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	member, ok := t.store.members[memberKey(organizationID, userID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &member, nil
}

func (t *memTx) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	student, ok := t.store.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (t *memTx) LockStudents(ctx context.Context, ids ...string) error {
	ordered := repository.SortedUnique(ids)
	t.store.mu.RLock()
	for _, id := range ordered {
		if _, ok := t.store.students[id]; !ok {
			t.store.mu.RUnlock()
			return sql.ErrNoRows
		}
	}
	t.store.mu.RUnlock()
	for _, id := range ordered {
		if err := t.lock(ctx, studentKey(id)); err != nil {
			return fmt.Errorf("lock student %s: %w", id, err)
		}
	}
	return nil
}

func (t *memTx) FindClassEvent(ctx context.Context, id string) (*models.ClassEvent, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	class, ok := t.store.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

func (t *memTx) LockClassEvent(ctx context.Context, id string) (*models.ClassEvent, error) {
	if _, err := t.FindClassEvent(ctx, id); err != nil {
		return nil, err
	}
	if err := t.lock(ctx, classKey(id)); err != nil {
		return nil, fmt.Errorf("lock class event %s: %w", id, err)
	}
	return t.FindClassEvent(ctx, id)
}

// FindAttendee locks the attendee's class and reads the row again, since the first read may be
// another transaction's pending insert.
func (t *memTx) FindAttendee(ctx context.Context, id string) (*models.ClassAttendee, error) {
	attendee, err := t.readAttendee(id)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, classKey(attendee.ClassEventID)); err != nil {
		return nil, fmt.Errorf("lock class event %s: %w", attendee.ClassEventID, err)
	}
	return t.readAttendee(id)
}

func (t *memTx) readAttendee(id string) (*models.ClassAttendee, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	attendee, ok := t.store.attendees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	attendee.OrganizationID = t.store.classes[attendee.ClassEventID].OrganizationID
	return &attendee, nil
}

func (t *memTx) ListAttendees(ctx context.Context, classEventID string) ([]models.ClassAttendee, error) {
	if err := t.lock(ctx, classKey(classEventID)); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	orgID := t.store.classes[classEventID].OrganizationID
	var out []models.ClassAttendee
	for _, attendee := range t.store.attendees {
		if attendee.ClassEventID == classEventID {
			attendee.OrganizationID = orgID
			out = append(out, attendee)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return t.store.order[out[i].ID] < t.store.order[out[j].ID]
	})
	return out, nil
}

func (t *memTx) CountOccupancy(ctx context.Context, classEventID string, statuses []models.AttendanceStatus) (int, error) {
	if err := t.lock(ctx, classKey(classEventID)); err != nil {
		return 0, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	count := 0
	for _, attendee := range t.store.attendees {
		if attendee.ClassEventID != classEventID {
			continue
		}
		for _, status := range statuses {
			if attendee.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (t *memTx) AttendeeExists(ctx context.Context, classEventID, studentID string) (bool, error) {
	if err := t.lock(ctx, classKey(classEventID)); err != nil {
		return false, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, attendee := range t.store.attendees {
		if attendee.ClassEventID == classEventID && attendee.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertAttendee(ctx context.Context, attendee *models.ClassAttendee) error {
	if !t.holds(classKey(attendee.ClassEventID)) {
		return ErrLockNotHeld
	}
	exists, err := t.AttendeeExists(ctx, attendee.ClassEventID, attendee.StudentID)
	if err != nil {
		return err
	}
	if exists {
		return repository.ErrDuplicateAttendee
	}
	if attendee.ID == "" {
		attendee.ID = uuid.NewString()
	}
	if attendee.CreatedAt.IsZero() {
		attendee.CreatedAt = time.Now().UTC()
	}
	attendee.UpdatedAt = attendee.CreatedAt
	if attendee.Status == "" {
		attendee.Status = models.AttendanceScheduled
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	row := *attendee
	row.OrganizationID = ""
	t.store.attendees[row.ID] = row
	t.store.seq++
	t.store.order[row.ID] = t.store.seq
	id := row.ID
	t.undo = append(t.undo, func() {
		delete(t.store.attendees, id)
		delete(t.store.order, id)
	})
	return nil
}

func (t *memTx) UpdateAttendeeStatus(ctx context.Context, id string, status models.AttendanceStatus) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	prev, ok := t.store.attendees[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !t.holds(classKey(prev.ClassEventID)) {
		return ErrLockNotHeld
	}
	next := prev
	next.Status = status
	next.UpdatedAt = time.Now().UTC()
	t.store.attendees[id] = next
	t.undo = append(t.undo, func() { t.store.attendees[id] = prev })
	return nil
}

func (t *memTx) DeleteAttendee(ctx context.Context, id string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	prev, ok := t.store.attendees[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !t.holds(classKey(prev.ClassEventID)) {
		return ErrLockNotHeld
	}
	prevOrder := t.store.order[id]
	delete(t.store.attendees, id)
	delete(t.store.order, id)
	t.undo = append(t.undo, func() {
		t.store.attendees[id] = prev
		t.store.order[id] = prevOrder
	})
	return nil
}

func (t *memTx) SumCredits(ctx context.Context, studentID string) (int, error) {
	if err := t.lock(ctx, studentKey(studentID)); err != nil {
		return 0, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return sumOf(t.store.credits[studentID]), nil
}

func (t *memTx) AppendCreditTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	if !t.holds(studentKey(txn.StudentID)) {
		return ErrLockNotHeld
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	studentID := txn.StudentID
	t.store.credits[studentID] = append(t.store.credits[studentID], *txn)
	t.undo = append(t.undo, func() {
		entries := t.store.credits[studentID]
		t.store.credits[studentID] = entries[:len(entries)-1]
	})
	return nil
}

func (t *memTx) SetCachedCredits(ctx context.Context, studentID string, value int) error {
	if !t.holds(studentKey(studentID)) {
		return ErrLockNotHeld
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	prev, ok := t.store.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	next := prev
	next.RepositionCredits = value
	t.store.students[studentID] = next
	t.undo = append(t.undo, func() { t.store.students[studentID] = prev })
	return nil
}

func (t *memTx) ListCreditTransactions(ctx context.Context, filter models.CreditTransactionFilter) ([]models.CreditTransaction, int, error) {
	page, size := repository.NormalizePage(filter.Page, filter.PageSize)
	if err := t.lock(ctx, studentKey(filter.StudentID)); err != nil {
		return nil, 0, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	entries := t.store.credits[filter.StudentID]
	total := len(entries)
	out := make([]models.CreditTransaction, 0, size)
	for i := total - 1 - (page-1)*size; i >= 0 && len(out) < size; i-- {
		out = append(out, entries[i])
	}
	return out, total, nil
}

func (t *memTx) ListDriftedStudents(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var ids []string
	for id, student := range t.store.students {
		if student.RepositionCredits != sumOf(t.store.credits[id]) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func sumOf(entries []models.CreditTransaction) int {
	total := 0
	for _, entry := range entries {
		total += entry.Amount
	}
	return total
}

func memberKey(orgID, userID string) string { return orgID + "|" + userID }
func classKey(id string) string             { return "class:" + id }
func studentKey(id string) string           { return "student:" + id }
