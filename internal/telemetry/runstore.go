package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// runSchema contains the DDL executed on first open. Using IF NOT EXISTS
// makes it safe to run on every startup.
const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    repo        TEXT NOT NULL,
    issue       INTEGER NOT NULL,
    workflow    TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    cost_usd    REAL NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS runs_repo_issue ON runs(repo, issue);
`

// Run is one workflow execution record.
type Run struct {
	Repo       string
	Issue      int
	Workflow   string
	Outcome    string // success, failure, timeout
	CostUSD    float64
	DurationMs int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunStore persists workflow runs in a local SQLite database.
type RunStore struct {
	db *sql.DB
}

// OpenRunStore opens (or creates) the database at dbPath, enables WAL
// mode and busy timeout, and creates the schema if needed.
func OpenRunStore(ctx context.Context, dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open database: %w", err)
	}

	// SQLite only supports a single writer; one connection avoids
	// SQLITE_BUSY contention between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: create schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Record inserts one run row.
func (s *RunStore) Record(ctx context.Context, r Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO runs (repo, issue, workflow, outcome, cost_usd, duration_ms, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		r.Repo, r.Issue, r.Workflow, r.Outcome, r.CostUSD, r.DurationMs, r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("telemetry: record run for %s#%d: %w", r.Repo, r.Issue, err)
	}
	return nil
}

// RunsForIssue returns all recorded runs for one issue, oldest first.
func (s *RunStore) RunsForIssue(ctx context.Context, repo string, issue int) ([]Run, error) {
	const q = `
		SELECT repo, issue, workflow, outcome, cost_usd, duration_ms, started_at, finished_at
		FROM runs WHERE repo = ? AND issue = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, repo, issue)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query runs for %s#%d: %w", repo, issue, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Repo, &r.Issue, &r.Workflow, &r.Outcome, &r.CostUSD, &r.DurationMs, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TotalCost sums the cost of every recorded run for a repository.
func (s *RunStore) TotalCost(ctx context.Context, repo string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, "SELECT SUM(cost_usd) FROM runs WHERE repo = ?", repo).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("telemetry: total cost for %s: %w", repo, err)
	}
	return total.Float64, nil
}

// Close releases the database handle.
func (s *RunStore) Close() error {
	return s.db.Close()
}
