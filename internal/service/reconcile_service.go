package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/repository"
	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
	"github.com/noah-isme/reposition-api/pkg/jobs"
)

const jobTypeReconcileCredits = "credits.reconcile"

// ReconcilerConfig tunes the reconciliation queue and sweep.
type ReconcilerConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Batch      int
	Interval   time.Duration
}

// CreditReconciler rewrites cached student balances that drifted from the ledger sum.
// Jobs are keyed by student, so one student is never reconciled twice at once.
type CreditReconciler struct {
	store     repository.Store
	queue     *jobs.Queue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	batch     int
	interval  time.Duration
}

// NewCreditReconciler constructs a CreditReconciler with its own job queue.
func NewCreditReconciler(store repository.Store, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReconcilerConfig) *CreditReconciler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	r := &CreditReconciler{
		store:     store,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		batch:     cfg.Batch,
		interval:  cfg.Interval,
	}
	r.queue = jobs.NewQueue("credit-reconcile", r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return r
}

// Start launches the queue workers.
func (r *CreditReconciler) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the workers.
func (r *CreditReconciler) Stop() {
	r.queue.Stop()
}

// Enqueue schedules reconciliation of one student of the organization.
func (r *CreditReconciler) Enqueue(ctx context.Context, organizationID, studentID string) (*dto.ReconcileResult, error) {
	if err := validateID(r.validator, studentID, "student id"); err != nil {
		return nil, err
	}
	err := r.store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := loadStudent(ctx, tx, organizationID, studentID)
		return err
	})
	if err != nil {
		return nil, serviceError(err, "failed to load student")
	}
	queued, err := r.queue.Enqueue(jobs.Job{Key: studentID, Type: jobTypeReconcileCredits})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue reconciliation")
	}
	return &dto.ReconcileResult{StudentID: studentID, Queued: queued}, nil
}

// Reconcile recomputes the student's balance under the student lock and repairs the cached value.
// It reports whether a repair was needed.
func (r *CreditReconciler) Reconcile(ctx context.Context, studentID string) (bool, error) {
	var cached, ledger int
	err := r.store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockStudents(ctx, studentID); err != nil {
			return err
		}
		student, err := tx.FindStudent(ctx, studentID)
		if err != nil {
			return err
		}
		ledger, err = tx.SumCredits(ctx, studentID)
		if err != nil {
			return err
		}
		cached = student.RepositionCredits
		if cached == ledger {
			return nil
		}
		return tx.SetCachedCredits(ctx, studentID, ledger)
	})
	if err != nil {
		return false, err
	}
	if cached == ledger {
		return false, nil
	}
	r.metrics.RecordProjectionRepair()
	r.logger.Warn("credit projection repaired",
		zap.String("student_id", studentID),
		zap.Int("cached", cached),
		zap.Int("ledger", ledger),
	)
	return true, nil
}

// Sweep queues every student whose cached balance disagrees with the ledger, up to one batch.
func (r *CreditReconciler) Sweep(ctx context.Context) (int, error) {
	var drifted []string
	err := r.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		drifted, err = tx.ListDriftedStudents(ctx, r.batch)
		return err
	})
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range drifted {
		ok, err := r.queue.Enqueue(jobs.Job{Key: id, Type: jobTypeReconcileCredits})
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}
	if queued > 0 {
		r.logger.Info("credit drift sweep queued students", zap.Int("count", queued))
	}
	return queued, nil
}

// Run sweeps on every interval tick until ctx is cancelled. A non-positive interval disables it.
func (r *CreditReconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("credit drift sweep failed", zap.Error(err))
			}
		}
	}
}

func (r *CreditReconciler) handle(ctx context.Context, job jobs.Job) error {
	_, err := r.Reconcile(ctx, job.Key)
	return err
}
