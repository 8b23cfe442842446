package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/veritract/veritract/pipeline"
)

// WorkerConfig configures the polling worker.
type WorkerConfig struct {
	// PollInterval is how long the worker sleeps when the queue is empty.
	// Default: 2s.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Logger for job outcomes. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *WorkerConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Worker drains the analysis queue, running the full pipeline per job.
type Worker struct {
	queue  *Queue
	runner *pipeline.Runner
	cfg    WorkerConfig
}

// NewWorker creates a Worker.
func NewWorker(queue *Queue, runner *pipeline.Runner, cfg WorkerConfig) *Worker {
	cfg.defaults()
	return &Worker{queue: queue, runner: runner, cfg: cfg}
}

// Run polls until the context is cancelled. Jobs are processed one at a
// time; run several Workers for parallelism, the queue claim is atomic.
// Failed jobs with attempts left are requeued on each idle tick; poison jobs
// stay put.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything pending before sleeping.
		for {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.queue.RetryFailed(ctx)
			if err != nil {
				w.cfg.Logger.Warn("requeue failed jobs", "error", err)
			} else if n > 0 {
				w.cfg.Logger.Info("requeued failed jobs", "count", n)
			}
		}
	}
}

// RunOnce claims and processes a single job. Returns false when the queue
// was empty. Pipeline failures are recorded on the job, not returned: only
// queue-level errors propagate.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Poll(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.cfg.Logger.With("job_id", job.ID, "agreement_id", job.AgreementID)
	log.Info("job started", "attempt", job.Attempts+1)

	if err := w.runner.Run(ctx, job.AgreementID); err != nil {
		log.Error("job failed", "error", err)
		if failErr := w.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			return true, failErr
		}
		return true, nil
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		return true, err
	}
	log.Info("job completed")
	return true, nil
}
