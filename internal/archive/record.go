package archive

import "time"

// Status is the lifecycle state of an archive record.
type Status string

const (
	// StatusQueued — created, waiting for an operator to execute the archival.
	StatusQueued Status = "queued"
	// StatusArchivedPublic — classified, listed externally.
	StatusArchivedPublic Status = "archived_public"
	// StatusArchivedAdmin — classified, visible to operators only.
	StatusArchivedAdmin Status = "archived_admin"
	// StatusArchivedDeleted — delisted. Terminal; the record is retained as
	// audit history even when the underlying file is gone.
	StatusArchivedDeleted Status = "archived_deleted"
	// StatusExemptionVoid — the retention exemption was revoked because the
	// file's integrity could no longer be proven.
	StatusExemptionVoid Status = "exemption_void"
)

// validTransitions is the matrix of allowed status changes.
// Key is the current status, value the set of statuses reachable from it.
// Hard deletion of a queued record is not a transition and is handled separately.
var validTransitions = map[Status]map[Status]bool{
	StatusQueued:          {StatusArchivedPublic: true, StatusArchivedAdmin: true},
	StatusArchivedPublic:  {StatusArchivedAdmin: true, StatusArchivedDeleted: true, StatusExemptionVoid: true},
	StatusArchivedAdmin:   {StatusArchivedPublic: true, StatusArchivedDeleted: true, StatusExemptionVoid: true},
	StatusExemptionVoid:   {StatusArchivedDeleted: true},
	StatusArchivedDeleted: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Active reports whether a record in this status counts against the
// one-active-record-per-file rule.
func (s Status) Active() bool {
	switch s {
	case StatusQueued, StatusArchivedPublic, StatusArchivedAdmin, StatusExemptionVoid:
		return true
	}
	return false
}

// ArchivedActive reports whether the record is classified and still listed.
func (s Status) ArchivedActive() bool {
	return s == StatusArchivedPublic || s == StatusArchivedAdmin
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusArchivedDeleted
}

// CanTransition reports whether the status change from → to is allowed.
func CanTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// ActiveStatuses lists every status that blocks a new record for the same file.
func ActiveStatuses() []Status {
	return []Status{StatusQueued, StatusArchivedPublic, StatusArchivedAdmin, StatusExemptionVoid}
}

// Visibility selects which archived status Execute transitions into.
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityAdmin  Visibility = "admin"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityAdmin
}

// Status returns the archived status for this visibility.
func (v Visibility) Status() Status {
	if v == VisibilityAdmin {
		return StatusArchivedAdmin
	}
	return StatusArchivedPublic
}

// ReasonCode is the declared justification for archiving a file.
type ReasonCode string

const (
	ReasonReference     ReasonCode = "reference"
	ReasonResearch      ReasonCode = "research"
	ReasonRecordkeeping ReasonCode = "recordkeeping"
	ReasonOther         ReasonCode = "other"
)

// Valid reports whether r is a known reason code.
func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonReference, ReasonResearch, ReasonRecordkeeping, ReasonOther:
		return true
	}
	return false
}

// AssetCategory is the coarse content type reported by the asset catalog.
type AssetCategory string

const (
	CategoryDocument AssetCategory = "document"
	CategoryVideo    AssetCategory = "video"
	CategoryImage    AssetCategory = "image"
	CategoryAudio    AssetCategory = "audio"
	CategoryOther    AssetCategory = "other"
)

// Archivable reports whether assets of this category may enter the archive
// lifecycle at all.
func (c AssetCategory) Archivable() bool {
	return c == CategoryDocument || c == CategoryVideo
}

// Flags are derived conditions, re-computed by reconciliation. They describe
// the record's relationship to ground truth and never drive a status change
// except through the reconciliation escalations.
type Flags struct {
	UsageDetected      bool // active references to the file exist
	FileMissing        bool // source locator no longer resolves
	IntegrityViolation bool // stored checksum could not be verified
	LateClassification bool // classified after the cutoff, or file has void history
	ContentModified    bool // file bytes changed after classification
	PriorVoid          bool // a prior record for the same file went exemption_void
}

// Any reports whether at least one flag is set.
func (f Flags) Any() bool {
	return f != Flags{}
}

// Record is one archival action on a file. A file may accumulate several
// records over its lifetime, but at most one in an active status.
type Record struct {
	ID       string  // opaque identity, assigned at creation
	PublicID string  // stable externally shareable identifier, immutable
	Locator  Locator // where the underlying file lives; never moved by this system

	// FileBacked is false for manual entries (raw URLs). Those records skip
	// the existence gate, integrity verification and file deletion.
	FileBacked bool

	FileName  string
	Category  AssetCategory
	MIMEType  string
	SizeBytes int64
	Private   bool

	Reason            ReasonCode
	ReasonOther       string // required iff Reason == ReasonOther
	PublicDescription string // shown externally, required
	InternalNote      string

	// ChecksumSHA256 is empty until computed. Write-once through
	// Repository.SetChecksumOnce; large files receive it asynchronously.
	ChecksumSHA256 string

	// ClassifiedAt is the legal decision point. Write-once through
	// Repository.SetClassificationOnce.
	ClassifiedAt *time.Time

	Status Status
	Flags  Flags

	// VoidedAt is set when the record enters exemption_void and is never
	// cleared, so void history survives the later move to archived_deleted.
	VoidedAt *time.Time

	DeletedAt *time.Time
	DeletedBy string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the optimistic concurrency token. Every Update is
	// conditioned on it and bumps it.
	Version int64
}

// HasChecksum reports whether the integrity fingerprint has been recorded.
func (r *Record) HasChecksum() bool {
	return r.ChecksumSHA256 != ""
}

// Classified reports whether the record has passed its execution.
func (r *Record) Classified() bool {
	return r.ClassifiedAt != nil
}
