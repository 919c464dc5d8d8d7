package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
)

type Reconciler interface {
	ReconcileDeposits(ctx context.Context, limit int) (*models.ReconcileReport, error)
}

// ReconcileJob retries pending deposits in batches.
type ReconcileJob struct {
	reconciler Reconciler
	batchSize  int
	timeout    time.Duration
	logger     *zap.Logger
}

func NewReconcileJob(reconciler Reconciler, batchSize int, timeout time.Duration, logger *zap.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		batchSize:  batchSize,
		timeout:    timeout,
		logger:     logger,
	}
}

// Run executes one reconciliation pass.
func (j *ReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.reconciler.ReconcileDeposits(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("scheduled reconciliation failed", zap.Error(err))
		return
	}
	if report.Failed > 0 {
		j.logger.Warn("deposits still pending", zap.Int("failed", report.Failed), zap.Strings("failures", report.Failures))
	}
}

// Start registers job under schedule (standard cron syntax or @every
// descriptors) and starts the scheduler. Overlapping runs are skipped.
func Start(schedule string, job *ReconcileJob, logger *zap.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger.Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	c.Start()

	logger.Info("deposit reconciliation scheduled", zap.String("schedule", schedule), zap.Int("batch_size", job.batchSize))
	return c, nil
}

// cronLogger routes cron's own messages (skipped runs, job panics) to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
