package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"retain/internal/archive"
	"retain/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// recordColumns is the select list shared by every record query, in the scan
// order used by scanRecord.
const recordColumns = `id, public_id, locator, file_backed, file_name, category,
	mime_type, size_bytes, private, reason, reason_other, public_description,
	internal_note, checksum_sha256, classified_at, status,
	flag_usage_detected, flag_file_missing, flag_integrity_violation,
	flag_late_classification, flag_content_modified, flag_prior_void,
	voided_at, deleted_at, deleted_by, created_by, created_at, updated_at, version`

// SQLiteRepository implements archive.Repository backed by SQLite.
type SQLiteRepository struct {
	db    *sql.DB
	clock archive.Clock
	path  string
}

var _ archive.Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (or creates) the database at path and wraps it.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock falls back to archive.RealClock.
func NewSQLiteRepository(path string, clock archive.Clock) (*SQLiteRepository, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteRepositoryFromDB(db, clock, path), nil
}

// NewSQLiteRepositoryFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteRepositoryFromDB(db *sql.DB, clock archive.Clock, path string) *SQLiteRepository {
	if clock == nil {
		clock = archive.RealClock{}
	}
	return &SQLiteRepository{db: db, clock: clock, path: path}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// this package relies on. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the database schema is up-to-date.
func (r *SQLiteRepository) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(r.db)
}

// Migrate brings the schema to the latest version.
func (r *SQLiteRepository) Migrate() error {
	return migrations.MigrateUp(r.db)
}

// DB exposes the underlying connection for sibling stores (checksum queue,
// usage oracle) that share the same database file.
func (r *SQLiteRepository) DB() *sql.DB { return r.db }

// Path returns the database file path (or ":memory:").
func (r *SQLiteRepository) Path() string { return r.path }

func (r *SQLiteRepository) Create(ctx context.Context, rec *archive.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO archive_records (
			id, public_id, locator, file_backed, file_name, category,
			mime_type, size_bytes, private, reason, reason_other,
			public_description, internal_note, checksum_sha256, classified_at,
			status, flag_usage_detected, flag_file_missing,
			flag_integrity_violation, flag_late_classification,
			flag_content_modified, flag_prior_void, voided_at, deleted_at,
			deleted_by, created_by, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PublicID, string(rec.Locator), rec.FileBacked, rec.FileName, string(rec.Category),
		rec.MIMEType, rec.SizeBytes, rec.Private, string(rec.Reason), rec.ReasonOther,
		rec.PublicDescription, rec.InternalNote, nullString(rec.ChecksumSHA256), nullTime(rec.ClassifiedAt),
		string(rec.Status), rec.Flags.UsageDetected, rec.Flags.FileMissing,
		rec.Flags.IntegrityViolation, rec.Flags.LateClassification,
		rec.Flags.ContentModified, rec.Flags.PriorVoid, nullTime(rec.VoidedAt), nullTime(rec.DeletedAt),
		rec.DeletedBy, rec.CreatedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(), rec.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*archive.Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM archive_records WHERE id = ?", id)
	return scanRecord(row)
}

func (r *SQLiteRepository) GetByPublicID(ctx context.Context, publicID string) (*archive.Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM archive_records WHERE public_id = ?", publicID)
	return scanRecord(row)
}

func (r *SQLiteRepository) FindActiveByLocator(ctx context.Context, loc archive.Locator) (*archive.Record, error) {
	statuses := archive.ActiveStatuses()
	args := []any{string(loc)}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM archive_records WHERE locator = ? AND status IN ("+placeholders(len(statuses))+") LIMIT 1",
		args...)
	rec, err := scanRecord(row)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, statuses ...archive.Status) ([]*archive.Record, error) {
	query := "SELECT " + recordColumns + " FROM archive_records"
	var args []any
	if len(statuses) > 0 {
		query += " WHERE status IN (" + placeholders(len(statuses)) + ")"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []*archive.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

func (r *SQLiteRepository) HasVoidHistory(ctx context.Context, loc archive.Locator) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM archive_records
		WHERE locator = ? AND (status = ? OR voided_at IS NOT NULL)`,
		string(loc), string(archive.StatusExemptionVoid)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking void history: %w", err)
	}
	return count > 0, nil
}

// Update persists status, flags and deletion metadata conditioned on the
// version the caller read. The checksum and classification columns are
// deliberately absent from the statement; SetChecksumOnce and
// SetClassificationOnce are their only write paths.
func (r *SQLiteRepository) Update(ctx context.Context, rec *archive.Record) error {
	now := r.clock.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE archive_records SET
			status = ?,
			flag_usage_detected = ?, flag_file_missing = ?,
			flag_integrity_violation = ?, flag_late_classification = ?,
			flag_content_modified = ?, flag_prior_void = ?,
			voided_at = ?, deleted_at = ?, deleted_by = ?,
			private = ?, public_description = ?, internal_note = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(rec.Status),
		rec.Flags.UsageDetected, rec.Flags.FileMissing,
		rec.Flags.IntegrityViolation, rec.Flags.LateClassification,
		rec.Flags.ContentModified, rec.Flags.PriorVoid,
		nullTime(rec.VoidedAt), nullTime(rec.DeletedAt), rec.DeletedBy,
		rec.Private, rec.PublicDescription, rec.InternalNote,
		now, rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	if affected == 0 {
		return archive.ErrConcurrencyConflict
	}

	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (r *SQLiteRepository) SetChecksumOnce(ctx context.Context, id string, checksum string) error {
	return r.setOnce(ctx, id, "checksum_sha256", checksum)
}

func (r *SQLiteRepository) SetClassificationOnce(ctx context.Context, id string, at time.Time) error {
	return r.setOnce(ctx, id, "classified_at", at.UTC())
}

// setOnce writes a write-once column, failing if it already holds a value.
// The column name is always one of the two compile-time constants above.
func (r *SQLiteRepository) setOnce(ctx context.Context, id, column string, value any) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE archive_records SET "+column+" = ? WHERE id = ? AND "+column+" IS NULL",
		value, id)
	if err != nil {
		return fmt.Errorf("setting %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting %s: %w", column, err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows: either the record is gone or the value is already set.
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM archive_records WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("checking record %s: %w", id, err)
	}
	if count == 0 {
		return archive.ErrNotFound
	}
	return fmt.Errorf("%s on record %s: %w", column, id, archive.ErrAlreadySet)
}

func (r *SQLiteRepository) HardDelete(ctx context.Context, id string) error {
	// Any pending checksum job goes with the record.
	if _, err := r.db.ExecContext(ctx, "DELETE FROM checksum_jobs WHERE record_id = ?", id); err != nil {
		return fmt.Errorf("deleting checksum jobs: %w", err)
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM archive_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if affected == 0 {
		return archive.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*archive.Record, error) {
	var (
		rec          archive.Record
		locator      string
		category     string
		reason       string
		status       string
		checksum     sql.NullString
		classifiedAt sql.NullTime
		voidedAt     sql.NullTime
		deletedAt    sql.NullTime
	)

	err := s.Scan(
		&rec.ID, &rec.PublicID, &locator, &rec.FileBacked, &rec.FileName, &category,
		&rec.MIMEType, &rec.SizeBytes, &rec.Private, &reason, &rec.ReasonOther,
		&rec.PublicDescription, &rec.InternalNote, &checksum, &classifiedAt, &status,
		&rec.Flags.UsageDetected, &rec.Flags.FileMissing, &rec.Flags.IntegrityViolation,
		&rec.Flags.LateClassification, &rec.Flags.ContentModified, &rec.Flags.PriorVoid,
		&voidedAt, &deletedAt, &rec.DeletedBy, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt, &rec.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archive.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.Locator = archive.Locator(locator)
	rec.Category = archive.AssetCategory(category)
	rec.Reason = archive.ReasonCode(reason)
	rec.Status = archive.Status(status)
	if checksum.Valid {
		rec.ChecksumSHA256 = checksum.String
	}
	rec.ClassifiedAt = timePtr(classifiedAt)
	rec.VoidedAt = timePtr(voidedAt)
	rec.DeletedAt = timePtr(deletedAt)
	return &rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
