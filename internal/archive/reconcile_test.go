package archive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"retain/internal/archive"
	"retain/internal/testutil"
)

func newReconciler(f *fixture) *archive.Reconciler {
	return archive.NewReconciler(f.repo, f.gates, f.engine, f.comp, f.clock, nil)
}

func TestReconciler_Run(t *testing.T) {
	t.Run("healthy records are left alone", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		f.addAsset("docs/report.pdf", []byte("stable content"))
		f.archive(t, "docs/report.pdf", archive.VisibilityPublic)

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.Scanned != 1 {
			t.Errorf("Scanned = %d, want 1", stats.Scanned)
		}
		if stats.Updated != 0 {
			t.Errorf("Updated = %d, want 0 for a healthy record", stats.Updated)
		}
	})

	t.Run("queued record with missing file is dropped", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		f.addAsset("docs/report.pdf", []byte("x"))
		rec := f.enqueue(t, "docs/report.pdf")
		f.resolver.RemoveFile("docs/report.pdf")

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.QueueDrops != 1 {
			t.Errorf("QueueDrops = %d, want 1", stats.QueueDrops)
		}
		if _, err := f.svc.Get(context.Background(), rec.PublicID); !errors.Is(err, archive.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound after drop", err)
		}
	})

	t.Run("archived record with missing file is flagged, not dropped", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		f.addAsset("docs/report.pdf", []byte("x"))
		rec := f.archive(t, "docs/report.pdf", archive.VisibilityPublic)
		f.resolver.RemoveFile("docs/report.pdf")

		r := newReconciler(f)
		stats, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.MissingFlagged != 1 {
			t.Errorf("MissingFlagged = %d, want 1", stats.MissingFlagged)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Status != archive.StatusArchivedPublic {
			t.Errorf("Status = %s, an archived record must survive file loss", got.Status)
		}
		if !got.Flags.FileMissing {
			t.Error("FileMissing flag not set")
		}

		// A second sweep over the unchanged state writes nothing.
		stats, err = r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.Updated != 0 {
			t.Errorf("second sweep Updated = %d, want 0", stats.Updated)
		}
	})

	t.Run("missing flag clears when the file returns", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		content := []byte("x")
		f.addAsset("docs/report.pdf", content)
		rec := f.archive(t, "docs/report.pdf", archive.VisibilityPublic)
		f.resolver.RemoveFile("docs/report.pdf")

		r := newReconciler(f)
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		f.resolver.AddFile("docs/report.pdf", content)
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Flags.FileMissing {
			t.Error("FileMissing flag should clear once the file is readable again")
		}
	})

	t.Run("modified general archive is quietly withdrawn", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		f.addAsset("docs/report.pdf", []byte("original"))
		rec := f.archive(t, "docs/report.pdf", archive.VisibilityPublic)

		f.resolver.AddFile("docs/report.pdf", []byte("tampered"))

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.IntegrityFailed != 1 || stats.QuietWithdrawals != 1 {
			t.Errorf("stats = %+v, want one integrity failure and one withdrawal", stats)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Status != archive.StatusArchivedDeleted {
			t.Errorf("Status = %s, want archived_deleted", got.Status)
		}
		if !got.Flags.ContentModified {
			t.Error("ContentModified flag not set")
		}
		if got.DeletedBy != archive.ReconcilerActor {
			t.Errorf("DeletedBy = %q, want %q", got.DeletedBy, archive.ReconcilerActor)
		}
		if got.DeletedAt == nil {
			t.Error("DeletedAt not set")
		}
	})

	t.Run("modified legacy archive voids the exemption", func(t *testing.T) {
		f := newFixture(t, testutil.LegacyClock())
		f.addAsset("docs/old-report.pdf", []byte("original"))
		rec := f.archive(t, "docs/old-report.pdf", archive.VisibilityPublic)
		if rec.Flags.LateClassification {
			t.Fatal("setup: record should be classified before the cutoff")
		}

		// Years later the compliance deadline has passed and the file changed.
		f.clock.Set(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
		f.resolver.AddFile("docs/old-report.pdf", []byte("tampered"))

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.VoidEscalations != 1 {
			t.Errorf("VoidEscalations = %d, want 1", stats.VoidEscalations)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Status != archive.StatusExemptionVoid {
			t.Errorf("Status = %s, want exemption_void", got.Status)
		}
		if got.VoidedAt == nil {
			t.Error("VoidedAt not set")
		}
		if !got.Flags.IntegrityViolation {
			t.Error("IntegrityViolation flag not set")
		}
	})

	t.Run("void history blocks a second exemption", func(t *testing.T) {
		f := newFixture(t, testutil.LegacyClock())
		f.addAsset("docs/old-report.pdf", []byte("original"))

		voided := f.clock.Now()
		prior := &archive.Record{
			ID: "prior", PublicID: "prior-pub", Locator: "docs/old-report.pdf",
			FileBacked: true, FileName: "old-report.pdf",
			Category: archive.CategoryDocument, Reason: archive.ReasonReference,
			PublicDescription: "old", Status: archive.StatusArchivedDeleted,
			VoidedAt: &voided, CreatedBy: "alice",
			CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(), Version: 1,
		}
		if err := f.repo.Create(context.Background(), prior); err != nil {
			t.Fatalf("Create(prior) error = %v", err)
		}

		rec := f.archive(t, "docs/old-report.pdf", archive.VisibilityPublic)

		f.clock.Set(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
		f.resolver.AddFile("docs/old-report.pdf", []byte("tampered"))

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.VoidEscalations != 0 || stats.QuietWithdrawals != 1 {
			t.Errorf("stats = %+v, want a withdrawal, not a second void", stats)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Status != archive.StatusArchivedDeleted {
			t.Errorf("Status = %s, want archived_deleted", got.Status)
		}
	})

	t.Run("pre-cutoff integrity failure only flags", func(t *testing.T) {
		f := newFixture(t, testutil.LegacyClock())
		f.addAsset("docs/report.pdf", []byte("original"))
		rec := f.archive(t, "docs/report.pdf", archive.VisibilityPublic)

		f.resolver.AddFile("docs/report.pdf", []byte("tampered"))

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.IntegrityFailed != 1 {
			t.Errorf("IntegrityFailed = %d, want 1", stats.IntegrityFailed)
		}
		if stats.VoidEscalations != 0 || stats.QuietWithdrawals != 0 {
			t.Errorf("stats = %+v, escalation must wait for the cutoff", stats)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Status != archive.StatusArchivedPublic {
			t.Errorf("Status = %s, want archived_public", got.Status)
		}
		if !got.Flags.IntegrityViolation {
			t.Error("IntegrityViolation flag not set")
		}
	})

	t.Run("usage on an archived record is informational", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		f.addAsset("docs/report.pdf", []byte("x"))
		rec := f.archive(t, "docs/report.pdf", archive.VisibilityPublic)

		f.oracle.SetCount("docs/report.pdf", 5)
		r := newReconciler(f)
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		got, _ := f.svc.Get(context.Background(), rec.PublicID)
		if got.Status != archive.StatusArchivedPublic {
			t.Errorf("Status = %s, usage never changes an archived status", got.Status)
		}
		if !got.Flags.UsageDetected {
			t.Error("UsageDetected flag not set")
		}

		f.oracle.SetCount("docs/report.pdf", 0)
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		got, _ = f.svc.Get(context.Background(), rec.PublicID)
		if got.Flags.UsageDetected {
			t.Error("UsageDetected flag should clear when references go away")
		}
	})

	t.Run("manual entries are skipped", func(t *testing.T) {
		f := newFixture(t, testutil.FixedClock())
		f.catalog.AddAsset("https://example.org/minutes", archive.AssetInfo{
			Locator:    "https://example.org/minutes",
			FileBacked: false,
			FileName:   "minutes",
			Category:   archive.CategoryDocument,
		})
		f.archive(t, "https://example.org/minutes", archive.VisibilityPublic)

		stats, err := newReconciler(f).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.Scanned != 1 || stats.Updated != 0 {
			t.Errorf("stats = %+v, manual entries have nothing to verify", stats)
		}
	})
}
