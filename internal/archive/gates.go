package archive

import (
	"context"
	"fmt"
	"time"
)

// AssetInfo describes a candidate file as reported by the asset catalog.
type AssetInfo struct {
	Locator    Locator
	FileBacked bool
	FileName   string
	MIMEType   string
	SizeBytes  int64
	Category   AssetCategory
}

// AssetCatalog is the external discovery collaborator. The core only asks
// whether an asset is archivable and how to describe it.
type AssetCatalog interface {
	// Archivable reports whether the asset's category permits archiving.
	Archivable(ctx context.Context, assetID string) (bool, error)

	// Describe returns the asset's locator and file metadata.
	Describe(ctx context.Context, assetID string) (*AssetInfo, error)
}

// UsageOracle reports how many places still actively reference a file.
type UsageOracle interface {
	ActiveReferenceCount(ctx context.Context, loc Locator) (int, error)
}

// GateResult is the outcome of running the execution gates on one record.
type GateResult struct {
	FileMissing   bool
	UsageDetected bool
	UsageCount    int
}

// Blocked reports whether execution may not proceed. allowInUse relaxes only
// the usage gate, never the existence gate.
func (r GateResult) Blocked(allowInUse bool) bool {
	if r.FileMissing {
		return true
	}
	return r.UsageDetected && !allowInUse
}

// GateValidator runs the ordered execution gates: file existence first, then
// active usage. The same checks are re-run by reconciliation.
type GateValidator struct {
	resolver Resolver
	oracle   UsageOracle
	timeout  time.Duration
}

// NewGateValidator creates a validator. A zero timeout falls back to
// DefaultHashTimeout for the existence probe.
func NewGateValidator(resolver Resolver, oracle UsageOracle, timeout time.Duration) *GateValidator {
	if timeout <= 0 {
		timeout = DefaultHashTimeout
	}
	return &GateValidator{resolver: resolver, oracle: oracle, timeout: timeout}
}

// Check runs both gates for the record. Resolver failures and timeouts count
// as the file being missing; oracle failures are system errors and propagate.
// Non-file-backed records pass the existence gate by definition.
func (v *GateValidator) Check(ctx context.Context, rec *Record) (GateResult, error) {
	var res GateResult

	if rec.FileBacked {
		probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
		exists, err := v.resolver.Exists(probeCtx, rec.Locator)
		cancel()
		if err != nil || !exists {
			res.FileMissing = true
			return res, nil
		}
	}

	count, err := v.oracle.ActiveReferenceCount(ctx, rec.Locator)
	if err != nil {
		return res, fmt.Errorf("querying usage for %s: %w", rec.Locator, err)
	}
	if count > 0 {
		res.UsageDetected = true
		res.UsageCount = count
	}

	return res, nil
}
