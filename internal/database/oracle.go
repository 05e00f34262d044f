package database

import (
	"context"
	"database/sql"
	"fmt"

	"retain/internal/archive"
)

// SQLiteUsageOracle answers the usage gate from the asset_references table.
// Outside systems (page scanners, link checkers) write references; the
// archive core only ever reads an aggregate count.
type SQLiteUsageOracle struct {
	db    *sql.DB
	clock archive.Clock
}

var _ archive.UsageOracle = (*SQLiteUsageOracle)(nil)

// NewSQLiteUsageOracle wraps the given connection. A nil clock falls back to
// archive.RealClock.
func NewSQLiteUsageOracle(db *sql.DB, clock archive.Clock) *SQLiteUsageOracle {
	if clock == nil {
		clock = archive.RealClock{}
	}
	return &SQLiteUsageOracle{db: db, clock: clock}
}

func (o *SQLiteUsageOracle) ActiveReferenceCount(ctx context.Context, loc archive.Locator) (int, error) {
	var count int
	err := o.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM asset_references WHERE locator = ?", string(loc)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting references for %s: %w", loc, err)
	}
	return count, nil
}

// RecordReference registers an active reference. Idempotent per
// (locator, referrer) pair. Exposed for the systems that feed the oracle.
func (o *SQLiteUsageOracle) RecordReference(ctx context.Context, loc archive.Locator, referrer string) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO asset_references (locator, referrer, created_at) VALUES (?, ?, ?)
		ON CONFLICT (locator, referrer) DO NOTHING`,
		string(loc), referrer, o.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording reference: %w", err)
	}
	return nil
}

// ClearReference removes a reference that no longer exists.
func (o *SQLiteUsageOracle) ClearReference(ctx context.Context, loc archive.Locator, referrer string) error {
	if _, err := o.db.ExecContext(ctx,
		"DELETE FROM asset_references WHERE locator = ? AND referrer = ?",
		string(loc), referrer); err != nil {
		return fmt.Errorf("clearing reference: %w", err)
	}
	return nil
}
