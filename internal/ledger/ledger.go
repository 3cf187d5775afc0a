// Package ledger keeps an audit trail of ingest runs in SQLite.
//
// The ledger is write-only from the pipeline's point of view: it is never
// consulted to skip objects, so redelivered objects are indexed again.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/index"
)

// Run status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// DefaultListLimit is the number of runs List returns when limit is not positive.
const DefaultListLimit = 20

// Run is one recorded pipeline run.
type Run struct {
	ID             string
	Bucket         string
	Key            string
	Partition      string
	Classification string
	Documents      int
	Deleted        []string
	Status         string
	ErrorCode      string
	Error          string
	Started        time.Time
	Duration       time.Duration
}

// Ledger stores runs in a SQLite database.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

var _ index.Recorder = (*Ledger)(nil)

// Open opens or creates the ledger at path. An empty path opens an
// in-memory ledger.
func Open(path string) (*Ledger, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// Single writer; also keeps an in-memory database on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS ingest_runs (
		id              TEXT PRIMARY KEY,
		bucket          TEXT NOT NULL,
		object_key      TEXT NOT NULL,
		partition_name  TEXT NOT NULL DEFAULT '',
		classification  TEXT NOT NULL DEFAULT '',
		documents       INTEGER NOT NULL DEFAULT 0,
		deleted         TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		error_code      TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT '',
		started_at      INTEGER NOT NULL,
		duration_ms     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Path returns the database path, or "" for an in-memory ledger.
func (l *Ledger) Path() string {
	return l.path
}

// Record stores the outcome of a coordinator run.
func (l *Ledger) Record(ctx context.Context, res *index.Result, runErr error) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	run := Run{
		Bucket:         res.Notification.Bucket,
		Key:            res.Notification.Key,
		Partition:      res.Partition,
		Classification: res.Classification,
		Documents:      res.Documents,
		Status:         StatusOK,
		Started:        res.Started,
		Duration:       res.Duration,
	}
	if res.Sweep != nil {
		run.Deleted = res.Sweep.Deleted()
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorCode = ierrors.GetCode(runErr)
		if run.ErrorCode == "" {
			run.ErrorCode = ierrors.ErrCodeInternal
		}
		run.Error = runErr.Error()
	}
	return l.Insert(ctx, run)
}

// Insert stores a run, assigning an id when it has none.
func (l *Ledger) Insert(ctx context.Context, run Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("ledger is closed")
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Started.IsZero() {
		run.Started = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, bucket, object_key, partition_name, classification,
			documents, deleted, status, error_code, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Bucket, run.Key, run.Partition, run.Classification,
		run.Documents, strings.Join(run.Deleted, ","), run.Status, run.ErrorCode, run.Error,
		run.Started.UnixMilli(), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("ledger is closed")
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, bucket, object_key, partition_name, classification, documents,
			deleted, status, error_code, error, started_at, duration_ms
		FROM ingest_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			deleted   string
			startedMs int64
			durMs     int64
		)
		if err := rows.Scan(&r.ID, &r.Bucket, &r.Key, &r.Partition, &r.Classification, &r.Documents,
			&deleted, &r.Status, &r.ErrorCode, &r.Error, &startedMs, &durMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if deleted != "" {
			r.Deleted = strings.Split(deleted, ",")
		}
		r.Started = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
