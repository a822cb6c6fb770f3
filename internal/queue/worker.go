package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/notify-garden/internal/pkg/correlation"
	"github.com/bissquit/notify-garden/internal/pkg/ctxlog"
)

// Config contains worker configuration.
type Config struct {
	BatchSize         int
	PollInterval      time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
	LockTimeout       time.Duration
	Retention         time.Duration
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         100,
		PollInterval:      5 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		NumWorkers:        5,
		LockTimeout:       5 * time.Minute,
		Retention:         24 * time.Hour,
	}
}

// Deliverer performs the channel send for a claimed job. It owns the
// notification's terminal status; the queue only tracks job state.
type Deliverer interface {
	DeliverByID(ctx context.Context, notificationID string) error
}

// Worker drains the delivery queue with a pool of goroutines.
type Worker struct {
	config    Config
	repo      Repository
	deliverer Deliverer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new delivery worker.
func NewWorker(config Config, repo Repository, deliverer Deliverer) *Worker {
	return &Worker{
		config:    config,
		repo:      repo,
		deliverer: deliverer,
		stopCh:    make(chan struct{}),
	}
}

// Start launches worker goroutines and the retention purger.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting delivery worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}

	if w.config.Retention > 0 {
		w.wg.Add(1)
		go w.runPurger(ctx)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("delivery worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx, workerID)
		}
	}
}

func (w *Worker) runPurger(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			purged, err := w.repo.PurgeFinished(ctx, w.config.Retention)
			if err != nil {
				slog.Error("failed to purge finished jobs", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("purged finished jobs", "count", purged)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, workerID int) {
	jobs, err := w.repo.ClaimJobs(ctx, w.config.BatchSize, w.config.LockTimeout)
	if err != nil {
		slog.Error("failed to claim delivery jobs", "worker", workerID, "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	slog.Debug("processing delivery jobs", "worker", workerID, "count", len(jobs))
	recordJobsClaimed(len(jobs))

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *Job) {
	// Restore the request context the job was created under, so delivery
	// logs line up with the admission logs.
	if job.CorrelationID != "" {
		ctx = correlation.WithID(ctx, job.CorrelationID)
		ctx = ctxlog.With(ctx, "correlation_id", job.CorrelationID)
	}

	err := w.deliverer.DeliverByID(ctx, job.NotificationID)
	if err != nil {
		w.handleDeliveryError(ctx, job, err)
		return
	}

	if err := w.repo.MarkAsSent(ctx, job.ID); err != nil {
		ctxlog.FromContext(ctx).Error("failed to mark job as sent", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) handleDeliveryError(ctx context.Context, job *Job, err error) {
	logger := ctxlog.FromContext(ctx)
	logger.Warn("delivery failed",
		"job_id", job.ID,
		"notification_id", job.NotificationID,
		"channel", job.Channel,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"error", err,
	)

	// Permanent failures and exhausted attempts both end the job. The
	// notification keeps the terminal status the delivery attempt wrote.
	if !isRetryable(err) || job.Attempts >= job.MaxAttempts {
		cause := err
		if isRetryable(err) {
			cause = fmt.Errorf("max attempts exceeded: %w", err)
		}
		if markErr := w.repo.MarkAsFailed(ctx, job.ID, cause); markErr != nil {
			logger.Error("failed to mark job as failed", "job_id", job.ID, "error", markErr)
		}
		return
	}

	nextAttempt := w.calculateNextAttempt(job.Attempts)
	if markErr := w.repo.MarkForRetry(ctx, job.ID, err, nextAttempt); markErr != nil {
		logger.Error("failed to mark job for retry", "job_id", job.ID, "error", markErr)
	}

	logger.Info("delivery scheduled for retry",
		"job_id", job.ID,
		"next_attempt", nextAttempt,
	)
}

func (w *Worker) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return time.Now().Add(time.Duration(backoff))
}

// isRetryable checks if an error is retryable, walking the wrap chain
// so classification survives fmt.Errorf wrapping.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if r, ok := e.(retryable); ok {
			return r.IsRetryable()
		}
	}

	// Default: retry unknown errors
	return true
}
