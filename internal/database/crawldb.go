package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// dbFileName is the SQLite file created inside the data directory.
const dbFileName = "norcrawl.db"

// CrawlDB stores terminal crawl outcomes and run summaries.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in the given directory.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite uses mode=rw to refuse creating new files.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per admitted URL that reached a terminal state.
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		domain TEXT NOT NULL,
		status_code INTEGER,
		class TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		finished_at DATETIME NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_domain ON outcomes(domain);

	-- One row per crawl run with its terminal bucket counts.
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		excluded INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// Record stores one terminal outcome. Re-delivery of the same (run, url)
// pair updates the row in place, so the sink is idempotent.
func (cdb *CrawlDB) Record(ctx context.Context, o model.Outcome) error {
	query := `
	INSERT INTO outcomes (run_id, url, domain, status_code, class, attempts, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		status_code = excluded.status_code,
		class = excluded.class,
		attempts = excluded.attempts,
		finished_at = excluded.finished_at
	`
	_, err := cdb.db.ExecContext(ctx, query,
		o.RunID,
		o.URL,
		o.Domain,
		o.StatusCode,
		o.Class.String(),
		o.Attempts,
		o.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", o.URL, err)
	}
	return nil
}

// CompletedURLs returns the URLs that reached a terminal state other than
// timeout in the given run. Timed-out tasks never actually ran and should
// be re-attempted when the run is resumed.
func (cdb *CrawlDB) CompletedURLs(ctx context.Context, runID string) ([]string, error) {
	query := `SELECT url FROM outcomes WHERE run_id = ? AND class != ? ORDER BY id`
	rows, err := cdb.db.QueryContext(ctx, query, runID, model.ClassTimeout.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query completed URLs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan completed URL: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completed URLs: %w", err)
	}
	return urls, nil
}

// SaveSummary stores or updates a run's terminal bucket counts.
func (cdb *CrawlDB) SaveSummary(ctx context.Context, s *model.Summary) error {
	query := `
	INSERT INTO runs (run_id, started_at, finished_at, succeeded, failed, excluded, timed_out)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		finished_at = excluded.finished_at,
		succeeded = excluded.succeeded,
		failed = excluded.failed,
		excluded = excluded.excluded,
		timed_out = excluded.timed_out
	`
	_, err := cdb.db.ExecContext(ctx, query,
		s.RunID,
		s.StartedAt.UTC().Format(time.RFC3339Nano),
		s.FinishedAt.UTC().Format(time.RFC3339Nano),
		s.Succeeded,
		s.Failed,
		s.Excluded,
		s.TimedOut,
	)
	if err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// LastRunID returns the most recently started run, or "" when the database
// holds no runs yet.
func (cdb *CrawlDB) LastRunID(ctx context.Context) (string, error) {
	var runID string
	query := `SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`
	err := cdb.db.QueryRowContext(ctx, query).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last run: %w", err)
	}
	return runID, nil
}
