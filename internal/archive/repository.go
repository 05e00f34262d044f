package archive

import (
	"context"
	"time"
)

// Repository is the persistence boundary for archive records.
//
// Write discipline: Update never touches the checksum or classification
// columns; SetChecksumOnce and SetClassificationOnce are the only write paths
// for those fields and fail with ErrAlreadySet once a value exists. This makes
// invariant I1 (write-once-per-lifecycle) structural rather than conventional.
type Repository interface {
	// Create inserts a new record. The record's ID, PublicID and timestamps
	// must already be populated.
	Create(ctx context.Context, rec *Record) error

	// GetByID returns the record with the given internal ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Record, error)

	// GetByPublicID returns the record with the given public ID, or ErrNotFound.
	GetByPublicID(ctx context.Context, publicID string) (*Record, error)

	// FindActiveByLocator returns the record in an active status for the
	// given locator, or nil if there is none. At most one can exist.
	FindActiveByLocator(ctx context.Context, loc Locator) (*Record, error)

	// ListByStatus returns all records in any of the given statuses, oldest
	// first. With no statuses it returns every record.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Record, error)

	// HasVoidHistory reports whether any record for the locator is, or has
	// ever been, in exemption_void.
	HasVoidHistory(ctx context.Context, loc Locator) (bool, error)

	// Update persists status, flags and deletion metadata, conditioned on
	// rec.Version. On success the record's Version and UpdatedAt are bumped
	// in place; on a version mismatch it returns ErrConcurrencyConflict.
	Update(ctx context.Context, rec *Record) error

	// SetChecksumOnce records the integrity fingerprint. Fails with
	// ErrAlreadySet if a checksum exists, ErrNotFound if the record is gone.
	SetChecksumOnce(ctx context.Context, id string, checksum string) error

	// SetClassificationOnce records the legal decision instant. Same
	// semantics as SetChecksumOnce.
	SetClassificationOnce(ctx context.Context, id string, at time.Time) error

	// HardDelete removes the record row entirely. Only used for abandoning a
	// queued intent; archived records are never physically deleted.
	HardDelete(ctx context.Context, id string) error

	// Close releases the underlying store.
	Close() error
}

// ChecksumJob is one unit of deferred checksum work.
type ChecksumJob struct {
	ID       int64
	RecordID string
	Created  time.Time
	Attempts int
}

// ChecksumQueue is a lease-based work queue for checksum computation on large
// files. Processing is at-least-once: a claim that is not deleted before its
// lease expires becomes claimable again, and recomputation is idempotent.
type ChecksumQueue interface {
	// Enqueue adds a job for the record. One record enqueued twice yields
	// one job.
	Enqueue(ctx context.Context, recordID string) error

	// Claim leases the oldest claimable job to workerID for the given
	// duration and increments its attempt counter. Returns nil when nothing
	// is claimable.
	Claim(ctx context.Context, workerID string, lease time.Duration) (*ChecksumJob, error)

	// Delete removes a completed job.
	Delete(ctx context.Context, jobID int64) error

	// Count returns the number of jobs in the queue, leased or not.
	Count(ctx context.Context) (int, error)
}
