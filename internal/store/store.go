// Package store persists build records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"webwrap/internal/build"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store manages build records in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			webview_url TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			completed_at TEXT,
			apk_url TEXT,
			aab_url TEXT,
			build_path TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_builds_created
		ON builds(created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Create inserts a new record. Returns an E_ID_COLLISION error if the id is
// already taken.
func (s *Store) Create(ctx context.Context, rec *build.Record) error {
	var completedAt *string
	if rec.CompletedAt != nil {
		formatted := rec.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds
		(id, app_name, webview_url, status, created_at, completed_at,
		 apk_url, aab_url, build_path, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.AppName,
		rec.WebviewURL,
		string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339),
		completedAt,
		rec.APKURL,
		rec.AABURL,
		rec.BuildPath,
		rec.ErrorMessage,
	)
	if isPrimaryKeyConflict(err) {
		return build.NewError(build.EIDCollision, fmt.Sprintf("build id %q already exists", rec.ID))
	}
	if err != nil {
		return build.WrapError(build.EStoreUnavailable, "failed to insert build record", err)
	}

	return nil
}

// isPrimaryKeyConflict reports whether err is a primary-key constraint
// violation on insert. Other constraint failures are left to surface as
// store errors.
func isPrimaryKeyConflict(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id string) (*build.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app_name, webview_url, status, created_at, completed_at,
		       apk_url, aab_url, build_path, error_message
		FROM builds
		WHERE id = ?
	`, id)

	rec, err := scanBuildRecord(row)
	if err == sql.ErrNoRows {
		return nil, build.NewError(build.ENotFound, fmt.Sprintf("build %q not found", id))
	}
	if err != nil {
		return nil, build.WrapError(build.EStoreUnavailable, "failed to query build record", err)
	}

	return rec, nil
}

// Update overwrites the mutable fields of an existing record.
func (s *Store) Update(ctx context.Context, rec *build.Record) error {
	var completedAt *string
	if rec.CompletedAt != nil {
		formatted := rec.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE builds
		SET app_name = ?, webview_url = ?, status = ?, completed_at = ?,
		    apk_url = ?, aab_url = ?, build_path = ?, error_message = ?
		WHERE id = ?
	`,
		rec.AppName,
		rec.WebviewURL,
		string(rec.Status),
		completedAt,
		rec.APKURL,
		rec.AABURL,
		rec.BuildPath,
		rec.ErrorMessage,
		rec.ID,
	)
	if err != nil {
		return build.WrapError(build.EStoreUnavailable, "failed to update build record", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return build.WrapError(build.EStoreUnavailable, "failed to update build record", err)
	}
	if affected == 0 {
		return build.NewError(build.ENotFound, fmt.Sprintf("build %q not found", rec.ID))
	}

	return nil
}

// Delete removes one record. A second delete of the same id reports not
// found.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return build.WrapError(build.EStoreUnavailable, "failed to delete build record", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return build.WrapError(build.EStoreUnavailable, "failed to delete build record", err)
	}
	if affected == 0 {
		return build.NewError(build.ENotFound, fmt.Sprintf("build %q not found", id))
	}

	return nil
}

// List returns all records ordered by creation time, newest first.
func (s *Store) List(ctx context.Context) ([]build.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, app_name, webview_url, status, created_at, completed_at,
		       apk_url, aab_url, build_path, error_message
		FROM builds
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, build.WrapError(build.EStoreUnavailable, "failed to query build records", err)
	}
	defer rows.Close()

	var records []build.Record
	for rows.Next() {
		rec, err := scanBuildRecord(rows)
		if err != nil {
			return nil, build.WrapError(build.EStoreUnavailable, "failed to scan build record", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, build.WrapError(build.EStoreUnavailable, "error iterating rows", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBuildRecord(s scanner) (*build.Record, error) {
	var rec build.Record
	var status string
	var createdAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&rec.ID,
		&rec.AppName,
		&rec.WebviewURL,
		&status,
		&createdAtStr,
		&completedAtStr,
		&rec.APKURL,
		&rec.AABURL,
		&rec.BuildPath,
		&rec.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = build.Status(status)

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	rec.CreatedAt = createdAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		rec.CompletedAt = &completedAt
	}

	return &rec, nil
}
