package tasks

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteStore keeps the task list in a SQLite database so it survives
// daemon restarts. Insertion order is the autoincrement position.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the task database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %v", ErrStore, err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: apply pragma %q: %v", ErrStore, pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin schema tx: %v", ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrStore, err)
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("%w: record schema version: %v", ErrStore, err)
		}
	case err != nil:
		return fmt.Errorf("%w: read schema version: %v", ErrStore, err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database %s has schema version %d, expected %d", ErrStore, s.path, version, schemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit schema: %v", ErrStore, err)
	}
	return nil
}

// Append implements Store.Append.
func (s *SQLiteStore) Append(t Task) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, category, description, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Category, t.Description, string(t.Status), now(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert task %s: %v", ErrStore, t.ID, err)
	}
	return nil
}

// Update implements Store.Update.
func (s *SQLiteStore) Update(t Task) error {
	res, err := s.db.Exec(
		`UPDATE tasks SET category = ?, description = ?, status = ?, updated_at = ? WHERE id = ?`,
		t.Category, t.Description, string(t.Status), now(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: update task %s: %v", ErrStore, t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	return nil
}

// List implements Store.List.
func (s *SQLiteStore) List() ([]Task, error) {
	rows, err := s.db.Query(`SELECT id, category, description, status FROM tasks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", ErrStore, err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var status string
		if err := rows.Scan(&t.ID, &t.Category, &t.Description, &status); err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", ErrStore, err)
		}
		t.Status = Status(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tasks: %v", ErrStore, err)
	}
	return out, nil
}

// Clear implements Store.Clear.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("%w: clear tasks: %v", ErrStore, err)
	}
	return nil
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
