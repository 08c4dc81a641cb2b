// Package audit records a history of angelsharkd's runner executions to a
// local sqlite database, for operator troubleshooting. This is a
// collaborator-level concern: the core angelshark package stays stateless
// between process runs; audit rows are written by the daemon after the
// core returns, not by the core itself.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Log is a handle to the audit database.
type Log struct {
	db *sql.DB
}

// Open opens (and migrates) the audit database at dsn. Use ":memory:" for
// tests.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return l, nil
}

func (l *Log) Close() error { return l.db.Close() }

func (l *Log) migrate() error {
	if _, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := l.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := l.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Execution is one recorded run/manual/refresh invocation against an ACM.
type Execution struct {
	RequestID  string
	JobName    string
	Kind       string // "run", "run_cached", "manual", "refresh"
	InputCount int
	Success    bool
	Error      string
	Duration   time.Duration
	StartedAt  time.Time
}

// Record inserts an execution row. Failures to record are logged by the
// caller, not fatal to the request that produced them.
func (l *Log) Record(e Execution) error {
	_, err := l.db.Exec(
		`INSERT INTO executions (request_id, job_name, kind, input_count, success, error, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.JobName, e.Kind, e.InputCount, boolToInt(e.Success), nullableString(e.Error),
		e.Duration.Milliseconds(), e.StartedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// RecentFailures returns the most recent failed executions for jobName,
// newest first, up to limit rows.
func (l *Log) RecentFailures(jobName string, limit int) ([]Execution, error) {
	rows, err := l.db.Query(
		`SELECT request_id, job_name, kind, input_count, success, error, duration_ms, started_at
		 FROM executions WHERE job_name = ? AND success = 0 ORDER BY started_at DESC LIMIT ?`,
		jobName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e          Execution
			successInt int
			errStr     sql.NullString
			durationMs int64
			startedAt  string
		)
		if err := rows.Scan(&e.RequestID, &e.JobName, &e.Kind, &e.InputCount, &successInt, &errStr, &durationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Success = successInt != 0
		e.Error = errStr.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			e.StartedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
