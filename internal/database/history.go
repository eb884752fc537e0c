package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/boxhunt/internal/model"
)

// Filename is the name of the history database inside its directory.
const Filename = "history.db"

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// DB stores run summaries.
type DB struct {
	db     *sql.DB
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*DB, error) {
	dbPath := filepath.Join(dbDir, Filename)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &DB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *DB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *DB) Close() error {
	return h.db.Close()
}

func (h *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		mode TEXT NOT NULL,
		keywords TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		downloaded INTEGER NOT NULL DEFAULT 0,
		duplicate INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		index_size INTEGER NOT NULL DEFAULT 0,
		aborted INTEGER NOT NULL DEFAULT 0,
		abort_reason TEXT,
		summary_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_sources (
		run INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		source TEXT NOT NULL,
		candidates INTEGER NOT NULL,
		downloaded INTEGER NOT NULL,
		duplicate INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		PRIMARY KEY (run, source)
	);

	CREATE INDEX IF NOT EXISTS idx_run_sources_source ON run_sources(source);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run summary and returns its history id. Saving the same
// run id again replaces the earlier entry.
func (h *DB) SaveRun(ctx context.Context, s *model.RunSummary) (int64, error) {
	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize run summary: %w", err)
	}
	keywordsJSON, err := json.Marshal(s.Keywords)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize keywords: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_sources WHERE run IN (SELECT id FROM runs WHERE run_id = ?)`, s.RunID); err != nil {
		return 0, fmt.Errorf("failed to replace run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, s.RunID); err != nil {
		return 0, fmt.Errorf("failed to replace run: %w", err)
	}

	totals := s.Totals()
	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, mode, keywords, started_at, finished_at, downloaded, duplicate,
		rejected, failed, index_size, aborted, abort_reason, summary_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.RunID,
		string(s.Mode),
		string(keywordsJSON),
		formatTimestamp(s.StartedAt),
		formatTimestamp(s.FinishedAt),
		totals.Downloaded,
		totals.Duplicate,
		totals.Rejected,
		totals.Failed,
		s.IndexSize,
		s.Aborted,
		s.AbortReason,
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, src := range s.SortedSources() {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_sources (run, source, candidates, downloaded, duplicate, rejected, failed, skipped, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id, src.SourceID, src.Candidates, src.Downloaded, src.Duplicate,
			src.Rejected, src.Failed, src.Skipped, src.Bytes,
		); err != nil {
			return 0, fmt.Errorf("failed to save source %s: %w", src.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// RunMetadata is the listing form of a stored run.
type RunMetadata struct {
	ID          int64
	RunID       string
	Mode        model.RunMode
	Keywords    []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Downloaded  int
	Duplicate   int
	Rejected    int
	Failed      int
	IndexSize   int
	Aborted     bool
	AbortReason string
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (h *DB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, run_id, mode, keywords, started_at, finished_at, downloaded, duplicate,
		rejected, failed, index_size, aborted, abort_reason
	FROM runs
	ORDER BY id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta               RunMetadata
			mode, keywordsJSON string
			started            string
			finished, abortRsn sql.NullString
		)
		if err := rows.Scan(
			&meta.ID, &meta.RunID, &mode, &keywordsJSON, &started, &finished,
			&meta.Downloaded, &meta.Duplicate, &meta.Rejected, &meta.Failed,
			&meta.IndexSize, &meta.Aborted, &abortRsn,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.Mode = model.RunMode(mode)
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished.String)
		meta.AbortReason = abortRsn.String
		if err := json.Unmarshal([]byte(keywordsJSON), &meta.Keywords); err != nil {
			meta.Keywords = nil
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRun returns the stored summary of a run by history id.
func (h *DB) GetRun(ctx context.Context, id int64) (*model.RunSummary, error) {
	var summaryJSON string
	err := h.db.QueryRowContext(ctx, `SELECT summary_json FROM runs WHERE id = ?`, id).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var summary model.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	if summary.Sources == nil {
		summary.Sources = make(map[string]*model.SourceSummary)
	}
	return &summary, nil
}

// SourceTotal aggregates one source over every stored run.
type SourceTotal struct {
	Source     string
	Runs       int
	Candidates int
	Downloaded int
	Duplicate  int
	Rejected   int
	Failed     int
	Bytes      int64
}

// SourceTotals sums the per-source counts of every stored run, ordered by source.
func (h *DB) SourceTotals(ctx context.Context) ([]SourceTotal, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT source, COUNT(*), SUM(candidates), SUM(downloaded), SUM(duplicate),
		SUM(rejected), SUM(failed), SUM(bytes)
	FROM run_sources
	GROUP BY source
	ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum sources: %w", err)
	}
	defer rows.Close()

	var results []SourceTotal
	for rows.Next() {
		var st SourceTotal
		if err := rows.Scan(&st.Source, &st.Runs, &st.Candidates, &st.Downloaded,
			&st.Duplicate, &st.Rejected, &st.Failed, &st.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan source total: %w", err)
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
