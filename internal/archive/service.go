package archive

import (
	"context"
	"errors"
	"fmt"
)

// DefaultSyncChecksumLimit is the largest file hashed synchronously inside
// Execute. Larger files finish the status transition without a checksum and
// receive it through the checksum queue.
const DefaultSyncChecksumLimit int64 = 50 << 20 // 50 MiB

// ServiceParams carries the dependencies and tunables for NewService.
type ServiceParams struct {
	Repo       Repository
	Queue      ChecksumQueue
	Catalog    AssetCatalog
	Gates      *GateValidator
	Engine     *ChecksumEngine
	Resolver   Resolver
	Compliance *ComplianceClock
	Logger     Logger
	Clock      Clock
	IDGen      IDGenerator

	// AllowInUseExecute permits archiving files that still have active
	// references. The usage flag is still recorded.
	AllowInUseExecute bool

	// SyncChecksumLimit overrides DefaultSyncChecksumLimit when positive.
	SyncChecksumLimit int64
}

// Service orchestrates every archive lifecycle transition. All writes to
// archive records in the system pass through it; collaborators only ever read.
type Service struct {
	repo       Repository
	queue      ChecksumQueue
	catalog    AssetCatalog
	gates      *GateValidator
	engine     *ChecksumEngine
	resolver   Resolver
	compliance *ComplianceClock
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	allowInUse bool
	syncLimit  int64
}

// NewService creates a Service. Logger, Clock and IDGen default to NopLogger,
// RealClock and UUIDGenerator when nil.
func NewService(p ServiceParams) *Service {
	if p.Logger == nil {
		p.Logger = NewNopLogger()
	}
	if p.Clock == nil {
		p.Clock = RealClock{}
	}
	if p.IDGen == nil {
		p.IDGen = UUIDGenerator{}
	}
	if p.SyncChecksumLimit <= 0 {
		p.SyncChecksumLimit = DefaultSyncChecksumLimit
	}
	return &Service{
		repo:       p.Repo,
		queue:      p.Queue,
		catalog:    p.Catalog,
		gates:      p.Gates,
		engine:     p.Engine,
		resolver:   p.Resolver,
		compliance: p.Compliance,
		logger:     p.Logger,
		clock:      p.Clock,
		idgen:      p.IDGen,
		allowInUse: p.AllowInUseExecute,
		syncLimit:  p.SyncChecksumLimit,
	}
}

// EnqueueParams is the operator-supplied part of a new archival intent.
type EnqueueParams struct {
	Reason            ReasonCode
	ReasonOther       string
	PublicDescription string
	InternalNote      string
	Private           bool
}

// Enqueue creates a new record in queued status for the given asset.
// Fails with StateError(NotArchivable) for non-archivable categories and
// StateError(ActiveRecordExists) when the file already has an active record.
func (s *Service) Enqueue(ctx context.Context, actor, assetID string, p EnqueueParams) (*Record, error) {
	if p.PublicDescription == "" {
		return nil, &ValidationError{Field: "public_description", Detail: "required"}
	}
	if !p.Reason.Valid() {
		return nil, &ValidationError{Field: "reason", Detail: fmt.Sprintf("unknown reason code %q", p.Reason)}
	}
	if p.Reason == ReasonOther && p.ReasonOther == "" {
		return nil, &ValidationError{Field: "reason_other", Detail: "required when reason is other"}
	}

	ok, err := s.catalog.Archivable(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("checking archivability of %s: %w", assetID, err)
	}
	if !ok {
		return nil, &StateError{Reason: NotArchivable}
	}

	info, err := s.catalog.Describe(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("describing asset %s: %w", assetID, err)
	}

	existing, err := s.repo.FindActiveByLocator(ctx, info.Locator)
	if err != nil {
		return nil, fmt.Errorf("checking for active record: %w", err)
	}
	if existing != nil {
		return nil, &StateError{Reason: ActiveRecordExists, Status: existing.Status}
	}

	now := s.clock.Now()
	rec := &Record{
		ID:                s.idgen.New(),
		PublicID:          s.idgen.New(),
		Locator:           info.Locator,
		FileBacked:        info.FileBacked,
		FileName:          info.FileName,
		Category:          info.Category,
		MIMEType:          info.MIMEType,
		SizeBytes:         info.SizeBytes,
		Private:           p.Private,
		Reason:            p.Reason,
		ReasonOther:       p.ReasonOther,
		PublicDescription: p.PublicDescription,
		InternalNote:      p.InternalNote,
		Status:            StatusQueued,
		CreatedBy:         actor,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}

	s.logger.Info("archival queued", "public_id", rec.PublicID, "locator", rec.Locator, "actor", actor)
	return rec, nil
}

// Execute transitions a queued record into an archived status. The execution
// gates must pass; gate failures leave the record queued, persist the matching
// flag and return GateBlockedError so the operator sees the blocking condition.
func (s *Service) Execute(ctx context.Context, actor, publicID string, vis Visibility) (*Record, error) {
	if !vis.Valid() {
		return nil, &ValidationError{Field: "visibility", Detail: fmt.Sprintf("must be %q or %q", VisibilityPublic, VisibilityAdmin)}
	}

	return s.mutate(ctx, publicID, func(rec *Record) error {
		if rec.Status != StatusQueued {
			return &StateError{Reason: NotQueued, Status: rec.Status}
		}

		res, err := s.gates.Check(ctx, rec)
		if err != nil {
			return err
		}
		// Gate flags reflect the latest run; a flag left by an earlier
		// blocked attempt never lingers.
		rec.Flags.FileMissing = res.FileMissing
		rec.Flags.UsageDetected = res.UsageDetected
		if res.FileMissing {
			if err := s.repo.Update(ctx, rec); err != nil {
				return err
			}
			return &GateBlockedError{Gate: GateExistence, Detail: fmt.Sprintf("source %s does not resolve to a readable file", rec.Locator)}
		}
		if res.UsageDetected && !s.allowInUse {
			if err := s.repo.Update(ctx, rec); err != nil {
				return err
			}
			return &GateBlockedError{Gate: GateUsage, Detail: fmt.Sprintf("file has %d active references", res.UsageCount)}
		}

		// Sync path: hash before committing anything, so a file that vanishes
		// between the gate and the hash leaves the record untouched.
		syncHash := rec.FileBacked && rec.SizeBytes <= s.syncLimit
		var checksum string
		if syncHash && !rec.HasChecksum() {
			checksum, err = s.engine.Compute(ctx, rec.Locator)
			if err != nil {
				rec.Flags.FileMissing = true
				if uerr := s.repo.Update(ctx, rec); uerr != nil {
					return uerr
				}
				return &GateBlockedError{Gate: GateExistence, Detail: fmt.Sprintf("source %s became unreadable: %v", rec.Locator, err)}
			}
		}

		priorVoid, err := s.repo.HasVoidHistory(ctx, rec.Locator)
		if err != nil {
			return fmt.Errorf("checking void history: %w", err)
		}

		now := s.clock.Now()
		if rec.ClassifiedAt == nil {
			if err := s.repo.SetClassificationOnce(ctx, rec.ID, now); err != nil {
				return fmt.Errorf("recording classification time: %w", err)
			}
			rec.ClassifiedAt = &now
		}
		if checksum != "" {
			if err := s.repo.SetChecksumOnce(ctx, rec.ID, checksum); err != nil {
				return fmt.Errorf("recording checksum: %w", err)
			}
			rec.ChecksumSHA256 = checksum
		}

		// The job is written before the status: a failure between the two
		// leaves a stray job for a queued record, never an archived record
		// whose fingerprint is never computed.
		deferred := rec.FileBacked && !rec.HasChecksum()
		if deferred {
			if err := s.queue.Enqueue(ctx, rec.ID); err != nil {
				return fmt.Errorf("queueing checksum job: %w", err)
			}
		}

		rec.Flags = Flags{
			UsageDetected:      res.UsageDetected,
			PriorVoid:          priorVoid,
			LateClassification: s.compliance.IsAfterCutoff(*rec.ClassifiedAt) || priorVoid,
		}
		rec.Status = vis.Status()
		if err := s.repo.Update(ctx, rec); err != nil {
			return err
		}

		s.logger.Info("record archived",
			"public_id", rec.PublicID, "status", rec.Status, "actor", actor,
			"late", rec.Flags.LateClassification, "checksum_deferred", deferred)
		return nil
	})
}

// ToggleVisibility flips an archived record between public and admin.
func (s *Service) ToggleVisibility(ctx context.Context, actor, publicID string) (*Record, error) {
	return s.mutate(ctx, publicID, func(rec *Record) error {
		if !rec.Status.ArchivedActive() {
			return &StateError{Reason: NotActive, Status: rec.Status}
		}
		if rec.Status == StatusArchivedPublic {
			rec.Status = StatusArchivedAdmin
		} else {
			rec.Status = StatusArchivedPublic
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			return err
		}
		s.logger.Info("visibility toggled", "public_id", rec.PublicID, "status", rec.Status, "actor", actor)
		return nil
	})
}

// Unarchive delists a record. The file itself is untouched; the record moves
// to archived_deleted and keeps serving as audit history.
func (s *Service) Unarchive(ctx context.Context, actor, publicID string) (*Record, error) {
	return s.mutate(ctx, publicID, func(rec *Record) error {
		if !rec.Status.ArchivedActive() && rec.Status != StatusExemptionVoid {
			return &StateError{Reason: NotUnarchivable, Status: rec.Status}
		}
		rec.Status = StatusArchivedDeleted
		rec.Flags = Flags{}
		if err := s.repo.Update(ctx, rec); err != nil {
			return err
		}
		s.logger.Info("record unarchived", "public_id", rec.PublicID, "actor", actor)
		return nil
	})
}

// DeleteFile removes the underlying file through the resolver and moves the
// record to archived_deleted with deletion metadata. Only file-backed records
// in an archived-active or exemption_void status qualify.
func (s *Service) DeleteFile(ctx context.Context, actor, publicID string) (*Record, error) {
	return s.mutate(ctx, publicID, func(rec *Record) error {
		if !rec.Status.ArchivedActive() && rec.Status != StatusExemptionVoid {
			return &StateError{Reason: NotDeletable, Status: rec.Status}
		}
		if !rec.FileBacked {
			return &StateError{Reason: NotDeletable, Status: rec.Status}
		}

		if err := s.resolver.Delete(ctx, rec.Locator); err != nil {
			return &UnderlyingIOError{Op: "delete", Err: err}
		}

		now := s.clock.Now()
		rec.Status = StatusArchivedDeleted
		rec.DeletedAt = &now
		rec.DeletedBy = actor
		if err := s.repo.Update(ctx, rec); err != nil {
			return err
		}
		s.logger.Info("underlying file deleted", "public_id", rec.PublicID, "locator", rec.Locator, "actor", actor)
		return nil
	})
}

// RemoveFromQueue abandons a queued intent by hard-deleting the record. This
// is the only path that physically removes a record.
func (s *Service) RemoveFromQueue(ctx context.Context, actor, publicID string) error {
	_, err := s.mutate(ctx, publicID, func(rec *Record) error {
		if rec.Status != StatusQueued {
			return &StateError{Reason: NotQueued, Status: rec.Status}
		}
		if err := s.repo.HardDelete(ctx, rec.ID); err != nil {
			return err
		}
		s.logger.Info("queued record removed", "public_id", rec.PublicID, "actor", actor)
		return nil
	})
	return err
}

// Get returns the record with the given public ID.
func (s *Service) Get(ctx context.Context, publicID string) (*Record, error) {
	return s.repo.GetByPublicID(ctx, publicID)
}

// List returns records filtered by status, oldest first.
func (s *Service) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	return s.repo.ListByStatus(ctx, statuses...)
}

// mutate loads the record, applies op, and retries exactly once on an
// optimistic concurrency conflict after re-reading current state.
func (s *Service) mutate(ctx context.Context, publicID string, op func(*Record) error) (*Record, error) {
	rec, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if err := op(rec); err != nil {
		if !errors.Is(err, ErrConcurrencyConflict) {
			return nil, err
		}
		s.logger.Debug("retrying after concurrent modification", "public_id", publicID)
		rec, err = s.repo.GetByPublicID(ctx, publicID)
		if err != nil {
			return nil, err
		}
		if err := op(rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
