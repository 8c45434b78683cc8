package memstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	SeedDemo(s, time.Now())
	return s
}

func TestWithinTxRollsBackEveryWrite(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	studentID := DemoStudentIDs[0]
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.LockClassEvent(ctx, DemoClassID)
		require.NoError(t, err)
		require.NoError(t, tx.LockStudents(ctx, studentID))
		require.NoError(t, tx.InsertAttendee(ctx, &models.ClassAttendee{ClassEventID: DemoClassID, StudentID: studentID}))
		require.NoError(t, tx.AppendCreditTransaction(ctx, &models.CreditTransaction{ID: "t1", StudentID: studentID, Amount: 3, Kind: models.CreditKindManual}))
		require.NoError(t, tx.SetCachedCredits(ctx, studentID, 3))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		attendees, err := tx.ListAttendees(ctx, DemoClassID)
		require.NoError(t, err)
		assert.Empty(t, attendees)
		sum, err := tx.SumCredits(ctx, studentID)
		require.NoError(t, err)
		assert.Zero(t, sum)
		student, err := tx.FindStudent(ctx, studentID)
		require.NoError(t, err)
		assert.Zero(t, student.RepositionCredits)
		return nil
	}))
}

func TestWritesRequireLocks(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.InsertAttendee(ctx, &models.ClassAttendee{ClassEventID: DemoClassID, StudentID: DemoStudentIDs[0]})
	})
	assert.ErrorIs(t, err, ErrLockNotHeld)

	err = s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.AppendCreditTransaction(ctx, &models.CreditTransaction{StudentID: DemoStudentIDs[0], Amount: 1})
	})
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestLockStudentsMissing(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	err := s.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.LockStudents(ctx, DemoStudentIDs[0], "missing")
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestClassLockSerializesTransactions(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(tx repository.Tx) error {
				if _, err := tx.LockClassEvent(ctx, DemoClassID); err != nil {
					return err
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside)
}

func TestLockHonoursContext(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := tx.LockClassEvent(ctx, DemoClassID)
			close(held)
			<-release
			return err
		})
	}()
	<-held
	defer close(release)

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := s.WithinTx(timeout, func(tx repository.Tx) error {
		_, err := tx.LockClassEvent(timeout, DemoClassID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadsWaitForPendingWrites(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	studentID := DemoStudentIDs[0]
	boom := errors.New("boom")
	held := make(chan struct{})
	release := make(chan struct{})
	writer := make(chan error, 1)
	go func() {
		writer <- s.WithinTx(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockClassEvent(ctx, DemoClassID); err != nil {
				return err
			}
			if err := tx.LockStudents(ctx, studentID); err != nil {
				return err
			}
			if err := tx.InsertAttendee(ctx, &models.ClassAttendee{ClassEventID: DemoClassID, StudentID: studentID}); err != nil {
				return err
			}
			if err := tx.AppendCreditTransaction(ctx, &models.CreditTransaction{ID: "pending", StudentID: studentID, Amount: 5, Kind: models.CreditKindManual}); err != nil {
				return err
			}
			close(held)
			<-release
			return boom
		})
	}()
	<-held

	type snapshot struct {
		sum       int
		attendees int
	}
	reader := make(chan snapshot, 1)
	go func() {
		var snap snapshot
		_ = s.WithinTx(ctx, func(tx repository.Tx) error {
			attendees, err := tx.ListAttendees(ctx, DemoClassID)
			if err != nil {
				return err
			}
			snap.attendees = len(attendees)
			snap.sum, err = tx.SumCredits(ctx, studentID)
			return err
		})
		reader <- snap
	}()

	select {
	case snap := <-reader:
		t.Fatalf("read finished while writer was open: %+v", snap)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.ErrorIs(t, <-writer, boom)
	select {
	case snap := <-reader:
		assert.Zero(t, snap.sum)
		assert.Zero(t, snap.attendees)
	case <-time.After(time.Second):
		t.Fatal("read never finished")
	}
}

func TestFindAttendeeRechecksAfterLock(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	held := make(chan struct{})
	release := make(chan struct{})
	writer := make(chan error, 1)
	attendee := &models.ClassAttendee{ID: "pending-attendee", ClassEventID: DemoClassID, StudentID: DemoStudentIDs[1]}
	go func() {
		writer <- s.WithinTx(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockClassEvent(ctx, DemoClassID); err != nil {
				return err
			}
			if err := tx.InsertAttendee(ctx, attendee); err != nil {
				return err
			}
			close(held)
			<-release
			return errors.New("abort")
		})
	}()
	<-held

	found := make(chan error, 1)
	go func() {
		found <- s.WithinTx(ctx, func(tx repository.Tx) error {
			_, err := tx.FindAttendee(ctx, attendee.ID)
			return err
		})
	}()
	close(release)
	require.Error(t, <-writer)
	assert.ErrorIs(t, <-found, sql.ErrNoRows)
}

func TestListCreditTransactionsNewestFirst(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	studentID := DemoStudentIDs[1]
	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.LockStudents(ctx, studentID))
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, tx.AppendCreditTransaction(ctx, &models.CreditTransaction{ID: id, StudentID: studentID, Amount: i + 1}))
		}
		return nil
	}))

	require.NoError(t, s.WithinTx(ctx, func(tx repository.Tx) error {
		items, total, err := tx.ListCreditTransactions(ctx, models.CreditTransactionFilter{StudentID: studentID, Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 2)
		assert.Equal(t, "c", items[0].ID)
		assert.Equal(t, "b", items[1].ID)

		drifted, err := tx.ListDriftedStudents(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{studentID}, drifted)
		return nil
	}))
}
