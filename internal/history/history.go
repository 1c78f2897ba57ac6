// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records pipeline runs in a local SQLite database so past
// conversions and their published repos can be listed later.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wknd/ez-er-rkllm-toolkit2/pkg/types"
)

// DefaultPath is the database location relative to the working directory.
var DefaultPath = filepath.Join(".rkllm-pipeline", "history.db")

var (
	// ErrNotFound means no run matches the id.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous means an id prefix matches more than one run.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			model_id TEXT NOT NULL,
			adapter_id TEXT,
			library TEXT NOT NULL,
			platform TEXT NOT NULL,
			optimization INTEGER NOT NULL,
			qtype TEXT NOT NULL,
			hybrid_rate REAL NOT NULL,
			export_file TEXT,
			repo_id TEXT,
			commit_url TEXT,
			download TEXT,
			convert TEXT,
			upload TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record inserts or replaces run. A missing ID is filled with a new UUID,
// which is returned.
func (s *Store) Record(ctx context.Context, run types.RunRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	sel := run.Selection
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (
			id, started_at, finished_at, model_id, adapter_id, library, platform,
			optimization, qtype, hybrid_rate, export_file, repo_id, commit_url,
			download, convert, upload, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		sel.ModelID, sel.AdapterID, string(sel.Library), string(sel.Platform),
		sel.Optimization, string(sel.QType), sel.HybridRate,
		run.ExportFile, run.RepoID, run.CommitURL,
		string(run.Download), string(run.Convert), string(run.Upload), run.Error,
	)
	if err != nil {
		return "", fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

const selectRuns = `SELECT id, started_at, finished_at, model_id, adapter_id, library,
	platform, optimization, qtype, hybrid_rate, export_file, repo_id, commit_url,
	download, convert, upload, error FROM runs`

// List returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]types.RunRecord, error) {
	q := selectRuns + ` ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the run whose id equals or starts with id.
func (s *Store) Get(ctx context.Context, id string) (types.RunRecord, error) {
	if id == "" {
		return types.RunRecord{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE id = ? OR substr(id, 1, ?) = ? LIMIT 2`, id, len(id), id)
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("looking up run %s: %w", id, err)
	}
	defer rows.Close()

	var found []types.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return types.RunRecord{}, err
		}
		if r.ID == id {
			return r, nil
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return types.RunRecord{}, err
	}
	switch len(found) {
	case 0:
		return types.RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	default:
		return types.RunRecord{}, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

func scanRun(rows *sql.Rows) (types.RunRecord, error) {
	var (
		r                                    types.RunRecord
		started                              string
		finished, adapter, export, repo, url sql.NullString
		library, platform, qtype             string
		download, convert, upload, runErr    sql.NullString
	)
	err := rows.Scan(&r.ID, &started, &finished, &r.Selection.ModelID, &adapter,
		&library, &platform, &r.Selection.Optimization, &qtype, &r.Selection.HybridRate,
		&export, &repo, &url, &download, &convert, &upload, &runErr)
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished.String)
	r.Selection.AdapterID = adapter.String
	r.Selection.Library = types.LibraryType(library)
	r.Selection.Platform = types.Platform(platform)
	r.Selection.QType = types.QType(qtype)
	r.ExportFile = export.String
	r.RepoID = repo.String
	r.CommitURL = url.String
	r.Download = types.StageStatus(download.String)
	r.Convert = types.StageStatus(convert.String)
	r.Upload = types.StageStatus(upload.String)
	r.Error = runErr.String
	return r, nil
}

// timeLayout has fixed-width fractions so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
