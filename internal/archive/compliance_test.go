package archive_test

import (
	"testing"
	"time"

	"retain/internal/archive"
)

func TestComplianceClock_IsAfterCutoff(t *testing.T) {
	clock := archive.NewComplianceClock(time.Time{})

	if clock.Cutoff() != archive.DefaultCutoff {
		t.Errorf("zero cutoff should fall back to default, got %v", clock.Cutoff())
	}

	if clock.IsAfterCutoff(archive.DefaultCutoff) {
		t.Error("the cutoff instant itself is not after the cutoff")
	}
	if clock.IsAfterCutoff(archive.DefaultCutoff.Add(-time.Second)) {
		t.Error("a moment before the cutoff is not after it")
	}
	if !clock.IsAfterCutoff(archive.DefaultCutoff.Add(time.Second)) {
		t.Error("a moment past the cutoff should be after it")
	}
}

func TestComplianceClock_IsLegacyEligible(t *testing.T) {
	clock := archive.NewComplianceClock(archive.DefaultCutoff)
	before := archive.DefaultCutoff.Add(-24 * time.Hour)
	after := archive.DefaultCutoff.Add(24 * time.Hour)

	t.Run("classified before cutoff is legacy", func(t *testing.T) {
		rec := &archive.Record{ClassifiedAt: &before}
		if !clock.IsLegacyEligible(rec, false) {
			t.Error("IsLegacyEligible = false, want true")
		}
	})

	t.Run("classified after cutoff is general", func(t *testing.T) {
		rec := &archive.Record{ClassifiedAt: &after}
		if clock.IsLegacyEligible(rec, false) {
			t.Error("IsLegacyEligible = true, want false")
		}
	})

	t.Run("prior void disqualifies permanently", func(t *testing.T) {
		rec := &archive.Record{ClassifiedAt: &before}
		if clock.IsLegacyEligible(rec, true) {
			t.Error("a file with void history can never be legacy again")
		}
	})

	t.Run("unclassified is never legacy", func(t *testing.T) {
		if clock.IsLegacyEligible(&archive.Record{}, false) {
			t.Error("IsLegacyEligible = true for unclassified record")
		}
	})
}
