package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
	"github.com/noah-isme/reposition-api/internal/repository/memstore"
)

const (
	orgA   = "00000000-0000-0000-0000-00000000000a"
	orgB   = "00000000-0000-0000-0000-00000000000b"
	userA  = "user-a"
	userB  = "user-b"
	classA = "00000000-0000-0000-0000-0000000000c1"
	classB = "00000000-0000-0000-0000-0000000000c2"
	stuX   = "00000000-0000-0000-0000-0000000000d1"
	stuY   = "00000000-0000-0000-0000-0000000000d2"
	stuZ   = "00000000-0000-0000-0000-0000000000d3"
	stuB   = "00000000-0000-0000-0000-0000000000e1"
	noSuch = "00000000-0000-0000-0000-0000000000ff"
)

type fixture struct {
	store        *memstore.Store
	metrics      *MetricsService
	scope        *OrganizationScope
	ledger       *CreditLedger
	capacity     *CapacityManager
	attendance   *AttendanceService
	enrollments  *EnrollmentService
	displacement *DisplacementResolver
	roster       *RosterService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	absentHoldsSeat bool
	cache           *CacheService
}

func withAbsentHoldingSeat() fixtureOption {
	return func(c *fixtureConfig) { c.absentHoldsSeat = true }
}

func withCache(cache *CacheService) fixtureOption {
	return func(c *fixtureConfig) { c.cache = cache }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memstore.New()
	store.PutOrganization(models.Organization{ID: orgA, Name: "North"})
	store.PutOrganization(models.Organization{ID: orgB, Name: "South"})
	store.PutMembership(models.Membership{OrganizationID: orgA, UserID: userA, Role: models.MemberRoleAdmin})
	store.PutMembership(models.Membership{OrganizationID: orgB, UserID: userB, Role: models.MemberRoleStaff})
	for _, id := range []string{stuX, stuY, stuZ} {
		store.PutStudent(models.Student{ID: id, OrganizationID: orgA, Name: id, EnrollmentType: models.EnrollmentTypeRegular})
	}
	store.PutStudent(models.Student{ID: stuB, OrganizationID: orgB, Name: "south", EnrollmentType: models.EnrollmentTypeExperimental})
	start := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)
	store.PutClassEvent(models.ClassEvent{ID: classA, OrganizationID: orgA, Title: "Evening", StartTime: start, DurationMinutes: 60, Capacity: 2})
	store.PutClassEvent(models.ClassEvent{ID: classB, OrganizationID: orgB, Title: "Morning", StartTime: start, DurationMinutes: 45, Capacity: 1})

	validate := validator.New()
	logger := zap.NewNop()
	metrics := NewMetricsService()
	capacity := NewCapacityManager(cfg.absentHoldsSeat)
	ledger := NewCreditLedger(store, metrics, validate, logger)
	roster := NewRosterService(store, capacity, cfg.cache, time.Minute, validate, logger)
	attendance := NewAttendanceService(store, ledger, roster, validate, logger)

	return &fixture{
		store:        store,
		metrics:      metrics,
		scope:        NewOrganizationScope(store, validate, logger),
		ledger:       ledger,
		capacity:     capacity,
		attendance:   attendance,
		enrollments:  NewEnrollmentService(store, capacity, attendance, ledger, roster, metrics, validate, logger),
		displacement: NewDisplacementResolver(store, capacity, attendance, ledger, roster, metrics, validate, logger),
		roster:       roster,
	}
}

func (f *fixture) grant(t *testing.T, studentID string, amount int) {
	t.Helper()
	_, err := f.ledger.Adjust(context.Background(), orgA, studentID, dto.CreditAdjustmentRequest{Amount: amount, Reason: "grant"})
	require.NoError(t, err)
}

func (f *fixture) enroll(t *testing.T, studentID string, useCredit bool) *dto.EnrollmentResult {
	t.Helper()
	result, err := f.enrollments.Request(context.Background(), orgA, classA, dto.EnrollmentRequest{StudentID: studentID, UseCredit: useCredit})
	require.NoError(t, err)
	return result
}

func (f *fixture) balance(t *testing.T, studentID string) int {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), orgA, studentID)
	require.NoError(t, err)
	return balance.Balance
}

func (f *fixture) cachedBalance(t *testing.T, studentID string) int {
	t.Helper()
	var student *models.Student
	err := f.store.WithinTx(context.Background(), func(tx repository.Tx) error {
		var err error
		student, err = tx.FindStudent(context.Background(), studentID)
		return err
	})
	require.NoError(t, err)
	return student.RepositionCredits
}
