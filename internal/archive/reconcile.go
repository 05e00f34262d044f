package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retain_reconcile_runs_total",
		Help: "Total number of reconciliation sweeps",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retain_reconcile_issues_total",
		Help: "Conditions detected by reconciliation, by type",
	}, []string{"type"})

	reconcileEscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retain_reconcile_escalations_total",
		Help: "Status escalations performed by reconciliation, by target status",
	}, []string{"status"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "retain_reconcile_duration_seconds",
		Help:    "Duration of a reconciliation sweep in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileStats summarizes one sweep.
type ReconcileStats struct {
	Scanned          int
	Updated          int
	QueueDrops       int // queued records hard-deleted because the file is gone
	MissingFlagged   int
	IntegrityFailed  int
	VoidEscalations  int // legacy records moved to exemption_void
	QuietWithdrawals int // general records moved to archived_deleted
	Conflicts        int // records skipped because a live operation won the race
}

// ReconcilerActor is recorded as the deleting actor when reconciliation
// withdraws a general archive whose content changed post-classification.
const ReconcilerActor = "reconciliation"

// Reconciler re-derives flags from ground truth for every non-terminal record
// and performs the compliance-deadline status escalations. It may run
// concurrently with live lifecycle operations; every write is conditioned on
// the version it read, and conflicted records are left for the next sweep.
type Reconciler struct {
	repo       Repository
	gates      *GateValidator
	engine     *ChecksumEngine
	compliance *ComplianceClock
	clock      Clock
	logger     Logger

	mu      sync.Mutex // guards against overlapping sweeps
	running bool
}

// NewReconciler creates a Reconciler. Logger and Clock default to NopLogger
// and RealClock when nil.
func NewReconciler(repo Repository, gates *GateValidator, engine *ChecksumEngine, compliance *ComplianceClock, clock Clock, logger Logger) *Reconciler {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Reconciler{
		repo:       repo,
		gates:      gates,
		engine:     engine,
		compliance: compliance,
		clock:      clock,
		logger:     logger,
	}
}

// Start runs a sweep every interval until ctx is cancelled. An overlapping
// sweep is skipped, not queued.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Run performs one sweep over every non-terminal record.
func (r *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("reconciliation already in progress, skipping")
		return ReconcileStats{}, nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	started := time.Now()
	reconcileRunsTotal.Inc()

	var stats ReconcileStats
	records, err := r.repo.ListByStatus(ctx, StatusQueued, StatusArchivedPublic, StatusArchivedAdmin)
	if err != nil {
		return stats, fmt.Errorf("listing records: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++

		if err := r.reconcileRecord(ctx, rec, &stats); err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				stats.Conflicts++
				r.logger.Debug("record changed under reconciliation, skipping", "public_id", rec.PublicID)
				continue
			}
			r.logger.Error("reconciling record failed", "public_id", rec.PublicID, "error", err)
		}
	}

	reconcileDurationSeconds.Observe(time.Since(started).Seconds())
	r.logger.Info("reconciliation sweep finished",
		"scanned", stats.Scanned, "updated", stats.Updated,
		"queue_drops", stats.QueueDrops, "void", stats.VoidEscalations,
		"withdrawn", stats.QuietWithdrawals, "conflicts", stats.Conflicts)
	return stats, nil
}

// reconcileRecord re-derives one record's flags and, past the compliance
// cutoff, escalates status. Writes happen only when something actually changed.
func (r *Reconciler) reconcileRecord(ctx context.Context, rec *Record, stats *ReconcileStats) error {
	// Manual entries have no file to monitor.
	if !rec.FileBacked {
		return nil
	}

	before := rec.Flags

	res, err := r.gates.Check(ctx, rec)
	if err != nil {
		return err
	}

	if res.FileMissing {
		reconcileIssuesTotal.WithLabelValues("file_missing").Inc()
		if rec.Status == StatusQueued {
			// Nothing left to archive; the intent is void.
			if err := r.repo.HardDelete(ctx, rec.ID); err != nil {
				return err
			}
			stats.QueueDrops++
			r.logger.Info("queued record dropped, file missing", "public_id", rec.PublicID, "locator", rec.Locator)
			return nil
		}
		// An archived record is evidence even if the file vanished.
		rec.Flags.FileMissing = true
		rec.Flags.UsageDetected = res.UsageDetected
		if rec.Flags != before {
			stats.MissingFlagged++
			return r.update(ctx, rec, stats)
		}
		return nil
	}
	rec.Flags.FileMissing = false

	if rec.Status.ArchivedActive() && rec.HasChecksum() {
		if !r.engine.Verify(ctx, rec) {
			reconcileIssuesTotal.WithLabelValues("integrity_violation").Inc()
			stats.IntegrityFailed++
			now := r.clock.Now()

			if r.compliance.IsAfterCutoff(now) {
				priorVoid, err := r.repo.HasVoidHistory(ctx, rec.Locator)
				if err != nil {
					return fmt.Errorf("checking void history: %w", err)
				}
				if r.compliance.IsLegacyEligible(rec, priorVoid) {
					rec.Status = StatusExemptionVoid
					rec.VoidedAt = &now
					rec.Flags.IntegrityViolation = true
					stats.VoidEscalations++
					reconcileEscalationsTotal.WithLabelValues(string(StatusExemptionVoid)).Inc()
					r.logger.Warn("retention exemption voided", "public_id", rec.PublicID, "locator", rec.Locator)
					return r.update(ctx, rec, stats)
				}
				// General archive: the file was altered post-classification,
				// so the classification is withdrawn quietly.
				rec.Status = StatusArchivedDeleted
				rec.Flags.ContentModified = true
				rec.DeletedAt = &now
				rec.DeletedBy = ReconcilerActor
				stats.QuietWithdrawals++
				reconcileEscalationsTotal.WithLabelValues(string(StatusArchivedDeleted)).Inc()
				r.logger.Warn("modified archive withdrawn", "public_id", rec.PublicID, "locator", rec.Locator)
				return r.update(ctx, rec, stats)
			}

			rec.Flags.IntegrityViolation = true
		} else {
			rec.Flags.IntegrityViolation = false
		}
	}

	// Usage is informational for archived records; it only blocks Execute.
	rec.Flags.UsageDetected = res.UsageDetected
	if res.UsageDetected {
		reconcileIssuesTotal.WithLabelValues("usage_detected").Inc()
	}

	if rec.Flags != before {
		return r.update(ctx, rec, stats)
	}
	return nil
}

func (r *Reconciler) update(ctx context.Context, rec *Record, stats *ReconcileStats) error {
	if err := r.repo.Update(ctx, rec); err != nil {
		return err
	}
	stats.Updated++
	return nil
}
