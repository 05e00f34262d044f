package archive_test

import (
	"testing"

	"retain/internal/archive"
)

func TestStatus(t *testing.T) {
	t.Run("valid statuses", func(t *testing.T) {
		for _, s := range []archive.Status{
			archive.StatusQueued,
			archive.StatusArchivedPublic,
			archive.StatusArchivedAdmin,
			archive.StatusArchivedDeleted,
			archive.StatusExemptionVoid,
		} {
			if !s.Valid() {
				t.Errorf("Valid(%q) = false, want true", s)
			}
		}
		if archive.Status("archived").Valid() {
			t.Error(`Valid("archived") = true, want false`)
		}
	})

	t.Run("active statuses", func(t *testing.T) {
		for _, s := range archive.ActiveStatuses() {
			if !s.Active() {
				t.Errorf("Active(%q) = false, want true", s)
			}
		}
		if archive.StatusArchivedDeleted.Active() {
			t.Error("archived_deleted should not be active")
		}
	})

	t.Run("archived active", func(t *testing.T) {
		if !archive.StatusArchivedPublic.ArchivedActive() || !archive.StatusArchivedAdmin.ArchivedActive() {
			t.Error("public and admin should be archived-active")
		}
		if archive.StatusQueued.ArchivedActive() || archive.StatusExemptionVoid.ArchivedActive() {
			t.Error("queued and exemption_void should not be archived-active")
		}
	})

	t.Run("archived_deleted is the only terminal status", func(t *testing.T) {
		if !archive.StatusArchivedDeleted.Terminal() {
			t.Error("archived_deleted should be terminal")
		}
		for _, s := range archive.ActiveStatuses() {
			if s.Terminal() {
				t.Errorf("Terminal(%q) = true, want false", s)
			}
		}
	})
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]archive.Status]bool{
		{archive.StatusQueued, archive.StatusArchivedPublic}:          true,
		{archive.StatusQueued, archive.StatusArchivedAdmin}:           true,
		{archive.StatusArchivedPublic, archive.StatusArchivedAdmin}:   true,
		{archive.StatusArchivedPublic, archive.StatusArchivedDeleted}: true,
		{archive.StatusArchivedPublic, archive.StatusExemptionVoid}:   true,
		{archive.StatusArchivedAdmin, archive.StatusArchivedPublic}:   true,
		{archive.StatusArchivedAdmin, archive.StatusArchivedDeleted}:  true,
		{archive.StatusArchivedAdmin, archive.StatusExemptionVoid}:    true,
		{archive.StatusExemptionVoid, archive.StatusArchivedDeleted}:  true,
	}

	all := []archive.Status{
		archive.StatusQueued,
		archive.StatusArchivedPublic,
		archive.StatusArchivedAdmin,
		archive.StatusArchivedDeleted,
		archive.StatusExemptionVoid,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]archive.Status{from, to}]
			if got := archive.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestVisibility(t *testing.T) {
	if !archive.VisibilityPublic.Valid() || !archive.VisibilityAdmin.Valid() {
		t.Error("public and admin should be valid visibilities")
	}
	if archive.Visibility("internal").Valid() {
		t.Error(`Visibility("internal") should be invalid`)
	}
	if archive.VisibilityPublic.Status() != archive.StatusArchivedPublic {
		t.Errorf("public visibility maps to %s", archive.VisibilityPublic.Status())
	}
	if archive.VisibilityAdmin.Status() != archive.StatusArchivedAdmin {
		t.Errorf("admin visibility maps to %s", archive.VisibilityAdmin.Status())
	}
}

func TestAssetCategory_Archivable(t *testing.T) {
	tests := []struct {
		category archive.AssetCategory
		want     bool
	}{
		{archive.CategoryDocument, true},
		{archive.CategoryVideo, true},
		{archive.CategoryImage, false},
		{archive.CategoryAudio, false},
		{archive.CategoryOther, false},
	}
	for _, tt := range tests {
		if got := tt.category.Archivable(); got != tt.want {
			t.Errorf("Archivable(%s) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestFlags_Any(t *testing.T) {
	if (archive.Flags{}).Any() {
		t.Error("zero flags should report Any() = false")
	}
	if !(archive.Flags{FileMissing: true}).Any() {
		t.Error("Any() = false with FileMissing set")
	}
	if !(archive.Flags{PriorVoid: true}).Any() {
		t.Error("Any() = false with PriorVoid set")
	}
}
