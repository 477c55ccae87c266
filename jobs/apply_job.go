package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/sirupsen/logrus"
)

// BatchApplier is satisfied by services.ApplyOrchestrator
type BatchApplier interface {
	ApplyForAllUsers(ctx context.Context) (map[string][]models.LotteryResult, models.BatchSummary, error)
}

// ApplyJob runs the daily entry batch for every user
type ApplyJob struct {
	applier   BatchApplier
	timeout   time.Duration
	isRunning atomic.Bool
	logger    *logrus.Entry
}

// NewApplyJob creates the scheduled apply job
func NewApplyJob(applier BatchApplier) *ApplyJob {
	return &ApplyJob{
		applier: applier,
		timeout: 2 * time.Hour,
		logger:  logrus.WithField("component", "ApplyJob"),
	}
}

// Run executes one batch. An overlapping trigger is skipped, not queued.
func (j *ApplyJob) Run() error {
	if !j.isRunning.CompareAndSwap(false, true) {
		j.logger.Warn("Apply job already running, skipping")
		return nil
	}
	defer j.isRunning.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	startTime := time.Now()
	j.logger.Info("Starting apply job")

	_, summary, err := j.applier.ApplyForAllUsers(ctx)
	if errors.Is(err, services.ErrBatchInProgress) {
		j.logger.Warn("Manual apply run in progress, scheduled run skipped")
		return nil
	}
	if err != nil {
		j.logger.WithError(err).Error("Apply job failed")
		return err
	}

	j.logger.WithFields(logrus.Fields{
		"batch_id":        summary.BatchID,
		"users":           summary.Users,
		"successful":      summary.Successful,
		"failed":          summary.Failed,
		"processing_time": time.Since(startTime),
	}).Info("Successfully completed apply job")
	return nil
}

// IsRunning returns whether the job is currently running
func (j *ApplyJob) IsRunning() bool {
	return j.isRunning.Load()
}
