package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retain/internal/archive"
)

// SQLiteChecksumQueue implements archive.ChecksumQueue in the same database
// file as the repository. The lease is a plain timestamp column: a job is
// claimable when it has never been leased or its lease has expired, and a
// claim is an optimistic UPDATE conditioned on that same predicate, so two
// workers cannot hold one job inside a live lease.
type SQLiteChecksumQueue struct {
	db    *sql.DB
	clock archive.Clock
}

var _ archive.ChecksumQueue = (*SQLiteChecksumQueue)(nil)

// NewSQLiteChecksumQueue wraps the given connection. A nil clock falls back
// to archive.RealClock.
func NewSQLiteChecksumQueue(db *sql.DB, clock archive.Clock) *SQLiteChecksumQueue {
	if clock == nil {
		clock = archive.RealClock{}
	}
	return &SQLiteChecksumQueue{db: db, clock: clock}
}

func (q *SQLiteChecksumQueue) Enqueue(ctx context.Context, recordID string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO checksum_jobs (record_id, created_at) VALUES (?, ?)
		ON CONFLICT (record_id) DO NOTHING`,
		recordID, q.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueueing checksum job: %w", err)
	}
	return nil
}

func (q *SQLiteChecksumQueue) Claim(ctx context.Context, workerID string, lease time.Duration) (*archive.ChecksumJob, error) {
	now := q.clock.Now().UTC()

	// Select-then-update: the UPDATE re-checks claimability, so losing the
	// race to another worker just means zero rows and another pass.
	for {
		var job archive.ChecksumJob
		err := q.db.QueryRowContext(ctx, `
			SELECT id, record_id, created_at, attempts FROM checksum_jobs
			WHERE leased_until IS NULL OR leased_until < ?
			ORDER BY created_at, id LIMIT 1`, now).
			Scan(&job.ID, &job.RecordID, &job.Created, &job.Attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("selecting claimable job: %w", err)
		}

		res, err := q.db.ExecContext(ctx, `
			UPDATE checksum_jobs
			SET leased_by = ?, leased_until = ?, attempts = attempts + 1
			WHERE id = ? AND (leased_until IS NULL OR leased_until < ?)`,
			workerID, now.Add(lease), job.ID, now)
		if err != nil {
			return nil, fmt.Errorf("claiming job %d: %w", job.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claiming job %d: %w", job.ID, err)
		}
		if affected == 1 {
			job.Attempts++
			return &job, nil
		}
	}
}

func (q *SQLiteChecksumQueue) Delete(ctx context.Context, jobID int64) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM checksum_jobs WHERE id = ?", jobID); err != nil {
		return fmt.Errorf("deleting job %d: %w", jobID, err)
	}
	return nil
}

func (q *SQLiteChecksumQueue) Count(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM checksum_jobs").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}
