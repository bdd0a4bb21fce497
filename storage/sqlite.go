// SQLite journal.
//
// Information Hiding:
// - Driver choice (cgo mattn/go-sqlite3 or pure-Go modernc.org/sqlite) hidden
//   behind OpenSqlite
// - Schema and migration details encapsulated
// - A single connection serializes writers; SQLite allows one at a time anyway

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/richinex/spindle/model"
)

// Supported database/sql driver names.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// SqliteJournal implements Journal on SQLite.
type SqliteJournal struct {
	db   *sql.DB
	path string
}

// OpenSqlite opens or creates a journal database at path using driver.
// Creates parent directories if they don't exist.
func OpenSqlite(driver, path string) (*SqliteJournal, error) {
	if driver == "" {
		driver = DriverMattn
	}
	if driver != DriverMattn && driver != DriverModernc {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	j := &SqliteJournal{db: db, path: path}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// NewSqliteInMemory creates an in-memory journal (useful for testing).
func NewSqliteInMemory(driver string) (*SqliteJournal, error) {
	if driver == "" {
		driver = DriverMattn
	}
	db, err := sql.Open(driver, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	j := &SqliteJournal{db: db, path: ":memory:"}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Path returns the database path.
func (j *SqliteJournal) Path() string {
	return j.path
}

// Close closes the database connection.
func (j *SqliteJournal) Close() error {
	return j.db.Close()
}

var migrations = []struct {
	version int
	sql     string
}{
	{1, `
		CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			topic TEXT NOT NULL,
			depth INTEGER NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT NOT NULL DEFAULT '',
			attempt TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_parent ON invocations(parent_id);

		CREATE TABLE IF NOT EXISTS steps (
			invocation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			output BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (invocation_id, seq)
		);
	`},
}

func (j *SqliteJournal) migrate() error {
	if _, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := j.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", m.version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (j *SqliteJournal) SaveInvocation(ctx context.Context, rec *model.InvocationRecord) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	var result sql.NullString
	if rec.Result != nil {
		result = sql.NullString{String: *rec.Result, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO invocations (id, parent_id, name, topic, depth, status, result, error, attempt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			attempt = excluded.attempt,
			updated_at = excluded.updated_at`,
		rec.ID, rec.ParentID, rec.Name, rec.Topic, rec.Depth, string(rec.Status), result,
		rec.Error, rec.Attempt, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save invocation %q: %w", rec.ID, err)
	}
	return nil
}

const invocationColumns = `id, parent_id, name, topic, depth, status, result, error, attempt, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row rowScanner) (*model.InvocationRecord, error) {
	var (
		rec                  model.InvocationRecord
		status               string
		result               sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.Name, &rec.Topic, &rec.Depth, &status,
		&result, &rec.Error, &rec.Attempt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsed, err := model.ParseInvocationStatus(status)
	if err != nil {
		return nil, err
	}
	rec.Status = parsed
	if result.Valid {
		s := result.String
		rec.Result = &s
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.UpdatedAt = time.Unix(0, updatedAt)
	return &rec, nil
}

func (j *SqliteJournal) LoadInvocation(ctx context.Context, id string) (*model.InvocationRecord, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+invocationColumns+" FROM invocations WHERE id = ?", id)
	rec, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Errorf(model.ErrNotFound, "invocation %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invocation %q: %w", id, err)
	}
	return rec, nil
}

// ListTree matches descendants with instr rather than LIKE, which folds
// ASCII case, or a byte length passed to substr, which counts characters.
func (j *SqliteJournal) ListTree(ctx context.Context, rootID string) ([]*model.InvocationRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT "+invocationColumns+` FROM invocations
		WHERE id = ? OR instr(id, ?) = 1
		ORDER BY created_at, id`,
		rootID, rootID+"/",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations under %q: %w", rootID, err)
	}
	defer rows.Close()

	var out []*model.InvocationRecord
	for rows.Next() {
		rec, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SqliteJournal) AppendStep(ctx context.Context, entry model.StepEntry) error {
	if err := validateID(entry.InvocationID); err != nil {
		return err
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO steps (invocation_id, seq, name, fingerprint, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.InvocationID, entry.Seq, entry.Name, entry.Fingerprint, entry.Output, entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintError(err) {
			return model.Errorf(model.ErrInvariantViolation, "step %d of %q already journaled", entry.Seq, entry.InvocationID)
		}
		return fmt.Errorf("failed to append step %d of %q: %w", entry.Seq, entry.InvocationID, err)
	}
	return nil
}

func (j *SqliteJournal) LoadSteps(ctx context.Context, invocationID string) ([]model.StepEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT invocation_id, seq, name, fingerprint, output, created_at
		FROM steps WHERE invocation_id = ? ORDER BY seq`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps of %q: %w", invocationID, err)
	}
	defer rows.Close()

	var out []model.StepEntry
	for rows.Next() {
		var (
			e         model.StepEntry
			createdAt int64
		)
		if err := rows.Scan(&e.InvocationID, &e.Seq, &e.Name, &e.Fingerprint, &e.Output, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// isConstraintError matches unique-key failures from either driver
// without importing driver-specific error types.
func isConstraintError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

var _ Journal = (*SqliteJournal)(nil)
