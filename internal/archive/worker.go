package archive

import (
	"context"
	"errors"
	"time"
)

// DefaultChecksumLease is long enough to hash multi-gigabyte files without a
// second worker reclaiming the job mid-run.
const DefaultChecksumLease = 300 * time.Second

// DefaultWorkerPoll is how often an idle worker looks for claimable jobs.
const DefaultWorkerPoll = 5 * time.Second

// Worker drains the checksum queue: claim with a lease, hash, write the
// checksum back through the write-once path, delete the job. On failure the
// job is left alone and becomes claimable again when the lease expires, so no
// checksum job is silently lost.
type Worker struct {
	id     string
	queue  ChecksumQueue
	repo   Repository
	engine *ChecksumEngine
	logger Logger
	lease  time.Duration
	poll   time.Duration
}

// NewWorker creates a checksum worker. Zero lease and poll durations fall
// back to the defaults; a nil logger falls back to NopLogger.
func NewWorker(id string, queue ChecksumQueue, repo Repository, engine *ChecksumEngine, logger Logger, lease, poll time.Duration) *Worker {
	if lease <= 0 {
		lease = DefaultChecksumLease
	}
	if poll <= 0 {
		poll = DefaultWorkerPoll
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		repo:   repo,
		engine: engine,
		logger: logger,
		lease:  lease,
		poll:   poll,
	}
}

// Run processes jobs until ctx is cancelled, sleeping between polls while the
// queue is empty.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.processOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("checksum job failed", "worker", w.id, "error", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.poll):
			}
		}
	}
}

// RunOnce drains every currently claimable job and returns the number
// completed. Used by tests and cron-style deployments.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	count := 0
	for {
		processed, err := w.processOne(ctx)
		if err != nil {
			return count, err
		}
		if !processed {
			return count, nil
		}
		count++
	}
}

// processOne claims and completes a single job. Returns false when nothing
// was claimable. Errors leave the job leased; it requeues on lease expiry.
func (w *Worker) processOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Claim(ctx, w.id, w.lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	rec, err := w.repo.GetByID(ctx, job.RecordID)
	if errors.Is(err, ErrNotFound) {
		// Record was hard-deleted while the job waited; nothing to hash.
		w.logger.Warn("dropping checksum job for missing record", "record_id", job.RecordID)
		return true, w.queue.Delete(ctx, job.ID)
	}
	if err != nil {
		return true, err
	}

	sum, err := w.engine.Compute(ctx, rec.Locator)
	if err != nil {
		return true, err
	}

	err = w.repo.SetChecksumOnce(ctx, rec.ID, sum)
	switch {
	case errors.Is(err, ErrAlreadySet):
		// A reclaimed job after lease expiry: recomputation is idempotent as
		// long as the stored value matches.
		if rec.ChecksumSHA256 != "" && rec.ChecksumSHA256 != sum {
			return true, err
		}
	case err != nil:
		return true, err
	}

	if err := w.queue.Delete(ctx, job.ID); err != nil {
		return true, err
	}

	w.logger.Info("checksum recorded", "worker", w.id, "record_id", rec.ID, "attempts", job.Attempts)
	return true, nil
}
