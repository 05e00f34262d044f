package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"retain/internal/archive"
	"retain/internal/testutil"
)

func newRecord(clock archive.Clock, id, locator string, status archive.Status) *archive.Record {
	now := clock.Now()
	return &archive.Record{
		ID:                id,
		PublicID:          id + "-pub",
		Locator:           archive.Locator(locator),
		FileBacked:        true,
		FileName:          "report.pdf",
		Category:          archive.CategoryDocument,
		MIMEType:          "application/pdf",
		SizeBytes:         1234,
		Reason:            archive.ReasonReference,
		PublicDescription: "kept for reference",
		Status:            status,
		CreatedBy:         "alice",
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	clock := testutil.FixedClock()
	repo := testutil.NewTestDatabase(t, clock)
	ctx := context.Background()

	rec := newRecord(clock, "r1", "docs/report.pdf", archive.StatusQueued)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("by internal id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "r1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.PublicID != "r1-pub" || got.Locator != "docs/report.pdf" {
			t.Errorf("GetByID() = %+v, fields do not round-trip", got)
		}
		if got.ChecksumSHA256 != "" || got.ClassifiedAt != nil || got.VoidedAt != nil {
			t.Error("unset optional columns must scan as zero values")
		}
		if !got.CreatedAt.Equal(rec.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
		}
	})

	t.Run("by public id", func(t *testing.T) {
		got, err := repo.GetByPublicID(ctx, "r1-pub")
		if err != nil {
			t.Fatalf("GetByPublicID() error = %v", err)
		}
		if got.ID != "r1" {
			t.Errorf("ID = %s, want r1", got.ID)
		}
	})

	t.Run("unknown ids return ErrNotFound", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, archive.ErrNotFound) {
			t.Errorf("GetByID() error = %v, want ErrNotFound", err)
		}
		if _, err := repo.GetByPublicID(ctx, "nope"); !errors.Is(err, archive.ErrNotFound) {
			t.Errorf("GetByPublicID() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteRepository_FindActiveByLocator(t *testing.T) {
	clock := testutil.FixedClock()
	repo := testutil.NewTestDatabase(t, clock)
	ctx := context.Background()

	t.Run("nil when no record exists", func(t *testing.T) {
		got, err := repo.FindActiveByLocator(ctx, "docs/none.pdf")
		if err != nil {
			t.Fatalf("FindActiveByLocator() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindActiveByLocator() = %+v, want nil", got)
		}
	})

	t.Run("finds active statuses", func(t *testing.T) {
		rec := newRecord(clock, "r1", "docs/a.pdf", archive.StatusArchivedPublic)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := repo.FindActiveByLocator(ctx, "docs/a.pdf")
		if err != nil {
			t.Fatalf("FindActiveByLocator() error = %v", err)
		}
		if got == nil || got.ID != "r1" {
			t.Errorf("FindActiveByLocator() = %+v, want r1", got)
		}
	})

	t.Run("ignores deleted records", func(t *testing.T) {
		rec := newRecord(clock, "r2", "docs/b.pdf", archive.StatusArchivedDeleted)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := repo.FindActiveByLocator(ctx, "docs/b.pdf")
		if err != nil {
			t.Fatalf("FindActiveByLocator() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindActiveByLocator() = %+v, archived_deleted is not active", got)
		}
	})
}

func TestSQLiteRepository_ListByStatus(t *testing.T) {
	clock := testutil.FixedClock()
	repo := testutil.NewTestDatabase(t, clock)
	ctx := context.Background()

	first := newRecord(clock, "r1", "docs/a.pdf", archive.StatusQueued)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	clock.Advance(time.Minute)
	second := newRecord(clock, "r2", "docs/b.pdf", archive.StatusQueued)
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	third := newRecord(clock, "r3", "docs/c.pdf", archive.StatusArchivedPublic)
	if err := repo.Create(ctx, third); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	queued, err := repo.ListByStatus(ctx, archive.StatusQueued)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("ListByStatus(queued) = %d records, want 2", len(queued))
	}
	if queued[0].ID != "r1" || queued[1].ID != "r2" {
		t.Error("ListByStatus() should order oldest first")
	}

	both, err := repo.ListByStatus(ctx, archive.StatusQueued, archive.StatusArchivedPublic)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(both) != 3 {
		t.Errorf("ListByStatus(queued, public) = %d records, want 3", len(both))
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	t.Run("persists and bumps the version", func(t *testing.T) {
		clock := testutil.FixedClock()
		repo := testutil.NewTestDatabase(t, clock)
		ctx := context.Background()

		rec := newRecord(clock, "r1", "docs/a.pdf", archive.StatusQueued)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		rec.Status = archive.StatusArchivedPublic
		rec.Flags.LateClassification = true
		if err := repo.Update(ctx, rec); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if rec.Version != 2 {
			t.Errorf("Version = %d, want 2 after update", rec.Version)
		}

		got, _ := repo.GetByID(ctx, "r1")
		if got.Status != archive.StatusArchivedPublic || !got.Flags.LateClassification {
			t.Errorf("GetByID() = %+v, update not persisted", got)
		}
		if got.Version != 2 {
			t.Errorf("stored Version = %d, want 2", got.Version)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		clock := testutil.FixedClock()
		repo := testutil.NewTestDatabase(t, clock)
		ctx := context.Background()

		rec := newRecord(clock, "r1", "docs/a.pdf", archive.StatusQueued)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		stale, _ := repo.GetByID(ctx, "r1")

		rec.Status = archive.StatusArchivedAdmin
		if err := repo.Update(ctx, rec); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		stale.Status = archive.StatusArchivedPublic
		if err := repo.Update(ctx, stale); !errors.Is(err, archive.ErrConcurrencyConflict) {
			t.Errorf("Update(stale) error = %v, want ErrConcurrencyConflict", err)
		}

		got, _ := repo.GetByID(ctx, "r1")
		if got.Status != archive.StatusArchivedAdmin {
			t.Errorf("Status = %s, the losing write must not apply", got.Status)
		}
	})
}

func TestSQLiteRepository_WriteOnceColumns(t *testing.T) {
	clock := testutil.FixedClock()
	repo := testutil.NewTestDatabase(t, clock)
	ctx := context.Background()

	rec := newRecord(clock, "r1", "docs/a.pdf", archive.StatusQueued)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("checksum", func(t *testing.T) {
		if err := repo.SetChecksumOnce(ctx, "r1", "abc123"); err != nil {
			t.Fatalf("SetChecksumOnce() error = %v", err)
		}
		if err := repo.SetChecksumOnce(ctx, "r1", "def456"); !errors.Is(err, archive.ErrAlreadySet) {
			t.Errorf("second SetChecksumOnce() error = %v, want ErrAlreadySet", err)
		}
		got, _ := repo.GetByID(ctx, "r1")
		if got.ChecksumSHA256 != "abc123" {
			t.Errorf("ChecksumSHA256 = %s, the first write must win", got.ChecksumSHA256)
		}
	})

	t.Run("classification", func(t *testing.T) {
		at := clock.Now()
		if err := repo.SetClassificationOnce(ctx, "r1", at); err != nil {
			t.Fatalf("SetClassificationOnce() error = %v", err)
		}
		if err := repo.SetClassificationOnce(ctx, "r1", at.Add(time.Hour)); !errors.Is(err, archive.ErrAlreadySet) {
			t.Errorf("second SetClassificationOnce() error = %v, want ErrAlreadySet", err)
		}
		got, _ := repo.GetByID(ctx, "r1")
		if got.ClassifiedAt == nil || !got.ClassifiedAt.Equal(at) {
			t.Errorf("ClassifiedAt = %v, want %v", got.ClassifiedAt, at)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		if err := repo.SetChecksumOnce(ctx, "nope", "abc"); !errors.Is(err, archive.ErrNotFound) {
			t.Errorf("SetChecksumOnce(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteRepository_HasVoidHistory(t *testing.T) {
	clock := testutil.FixedClock()
	repo := testutil.NewTestDatabase(t, clock)
	ctx := context.Background()

	t.Run("false without history", func(t *testing.T) {
		got, err := repo.HasVoidHistory(ctx, "docs/clean.pdf")
		if err != nil {
			t.Fatalf("HasVoidHistory() error = %v", err)
		}
		if got {
			t.Error("HasVoidHistory() = true for a clean locator")
		}
	})

	t.Run("true for a current void", func(t *testing.T) {
		rec := newRecord(clock, "r1", "docs/void.pdf", archive.StatusExemptionVoid)
		now := clock.Now()
		rec.VoidedAt = &now
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := repo.HasVoidHistory(ctx, "docs/void.pdf")
		if err != nil {
			t.Fatalf("HasVoidHistory() error = %v", err)
		}
		if !got {
			t.Error("HasVoidHistory() = false for an exemption_void record")
		}
	})

	t.Run("true after the void record is delisted", func(t *testing.T) {
		rec := newRecord(clock, "r2", "docs/was-void.pdf", archive.StatusArchivedDeleted)
		now := clock.Now()
		rec.VoidedAt = &now
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := repo.HasVoidHistory(ctx, "docs/was-void.pdf")
		if err != nil {
			t.Fatalf("HasVoidHistory() error = %v", err)
		}
		if !got {
			t.Error("void history must survive the move to archived_deleted")
		}
	})
}

func TestSQLiteRepository_HardDelete(t *testing.T) {
	clock := testutil.FixedClock()
	repo := testutil.NewTestDatabase(t, clock)
	queue := testutil.NewTestQueue(repo, clock)
	ctx := context.Background()

	rec := newRecord(clock, "r1", "docs/a.pdf", archive.StatusQueued)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := queue.Enqueue(ctx, "r1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := repo.HardDelete(ctx, "r1"); err != nil {
		t.Fatalf("HardDelete() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, "r1"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	count, _ := queue.Count(ctx)
	if count != 0 {
		t.Errorf("queue count = %d, pending jobs must go with the record", count)
	}

	if err := repo.HardDelete(ctx, "r1"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("second HardDelete() error = %v, want ErrNotFound", err)
	}
}
