package archive

import "time"

// DefaultCutoff is the compliance deadline used when none is configured.
var DefaultCutoff = time.Date(2018, time.September, 23, 0, 0, 0, 0, time.UTC)

// ComplianceClock classifies instants against the single configured compliance
// cutoff and decides whether a record still qualifies for the legacy retention
// exemption.
type ComplianceClock struct {
	cutoff time.Time
}

// NewComplianceClock creates a ComplianceClock for the given cutoff.
// A zero cutoff falls back to DefaultCutoff.
func NewComplianceClock(cutoff time.Time) *ComplianceClock {
	if cutoff.IsZero() {
		cutoff = DefaultCutoff
	}
	return &ComplianceClock{cutoff: cutoff}
}

// Cutoff returns the configured cutoff instant.
func (c *ComplianceClock) Cutoff() time.Time { return c.cutoff }

// IsAfterCutoff reports whether t falls after the compliance cutoff.
func (c *ComplianceClock) IsAfterCutoff(t time.Time) bool {
	return t.After(c.cutoff)
}

// IsLegacyEligible reports whether the record qualifies for the legacy
// retention exemption: classified before the cutoff, and no prior record for
// the same file ever went exemption_void. Anything else is a general archive.
func (c *ComplianceClock) IsLegacyEligible(rec *Record, hasPriorVoid bool) bool {
	if rec.ClassifiedAt == nil || hasPriorVoid {
		return false
	}
	return rec.ClassifiedAt.Before(c.cutoff)
}
