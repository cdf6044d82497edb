package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/utils"
)

// migrations holds the ledger schema. Versions are tracked in the
// schema_versions table and applied in order.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS incidents (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       DATETIME NOT NULL,
    service         TEXT NOT NULL DEFAULT '',
    category        TEXT NOT NULL DEFAULT '',
    severity        TEXT NOT NULL DEFAULT '',
    message         TEXT NOT NULL,
    resolved        INTEGER NOT NULL DEFAULT 0,
    resolution      TEXT,
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_attempt_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_incidents_message  ON incidents(message);
CREATE INDEX IF NOT EXISTS idx_incidents_resolved ON incidents(resolved);
CREATE INDEX IF NOT EXISTS idx_incidents_time     ON incidents(timestamp DESC);

CREATE TABLE IF NOT EXISTS patterns (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_pattern        TEXT NOT NULL,
    remediation_template TEXT NOT NULL,
    confidence           REAL NOT NULL DEFAULT 0.0,
    last_used            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS system_metrics (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     DATETIME NOT NULL,
    service       TEXT NOT NULL,
    cpu_usage     REAL NOT NULL DEFAULT 0.0,
    memory_usage  REAL NOT NULL DEFAULT 0.0,
    disk_usage    REAL NOT NULL DEFAULT 0.0,
    network_usage REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_metrics_time ON system_metrics(timestamp DESC);
`,
	},
}

// Store is the SQLite-backed event ledger shared by all periodic tasks.
// Mutations are atomic per record; no cross-record transactions are needed.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at the given path and runs pending
// migrations. The path must be a file; ":memory:" does not survive the
// database/sql connection pool.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL allows the retry sweep and the tail sweep to interleave reads
	// with single-record writes.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, utils.NewAppError("store.Open", "migrate event store", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Incidents ───────────────────────────────────────────────────────────────

// CreateIncident appends a new incident and assigns its monotonic ID.
func (s *Store) CreateIncident(ctx context.Context, inc *models.Incident) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO incidents(timestamp, service, category, severity, message, resolved, resolution)
        VALUES(?,?,?,?,?,0,NULL)
    `, inc.Timestamp.UTC(), inc.Service, inc.Category, string(inc.Severity), inc.Message)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("incident id: %w", err)
	}
	inc.ID = id
	return nil
}

// FindIncidentByMessage returns the incident with the exact message text, or
// nil when none exists. This point lookup backs the deduplication invariant.
func (s *Store) FindIncidentByMessage(ctx context.Context, message string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, selectIncident+` WHERE message = ? LIMIT 1`, message)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find incident by message: %w", err)
	}
	return inc, nil
}

// GetIncident returns one incident by ID.
func (s *Store) GetIncident(ctx context.Context, id int64) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, selectIncident+` WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, fmt.Errorf("get incident %d: %w", id, err)
	}
	return inc, nil
}

// ListUnresolved returns every incident with resolved == false, oldest first.
func (s *Store) ListUnresolved(ctx context.Context) ([]models.Incident, error) {
	return s.queryIncidents(ctx, selectIncident+` WHERE resolved = 0 ORDER BY id ASC`)
}

// ListIncidents returns the most recent incidents up to limit (0 = all),
// newest first.
func (s *Store) ListIncidents(ctx context.Context, limit int) ([]models.Incident, error) {
	q := selectIncident + ` ORDER BY id DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return s.queryIncidents(ctx, q)
}

// AllIncidents returns the full ledger in insertion order.
func (s *Store) AllIncidents(ctx context.Context) ([]models.Incident, error) {
	return s.queryIncidents(ctx, selectIncident+` ORDER BY id ASC`)
}

// RecentResolved returns the latest resolved incidents, newest first.
func (s *Store) RecentResolved(ctx context.Context, limit int) ([]models.Incident, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryIncidents(ctx,
		selectIncident+fmt.Sprintf(` WHERE resolved = 1 ORDER BY id DESC LIMIT %d`, limit))
}

// CountIncidents reports ledger totals for the dashboard.
func (s *Store) CountIncidents(ctx context.Context) (total, resolved int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(resolved), 0) FROM incidents`).Scan(&total, &resolved)
	if err != nil {
		return 0, 0, fmt.Errorf("count incidents: %w", err)
	}
	return total, resolved, nil
}

// MarkResolved sets resolved=true and attaches the resolution record.
// Overwriting an existing resolution is deliberate: re-resolution of an
// already-resolved incident must stay harmless.
func (s *Store) MarkResolved(ctx context.Context, id int64, res models.Resolution) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode resolution: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE incidents SET resolved = 1, resolution = ? WHERE id = ?`, string(payload), id)
	if err != nil {
		return fmt.Errorf("mark incident %d resolved: %w", id, err)
	}
	return nil
}

// RecordAttempt bumps the attempt counter for the retry policy.
func (s *Store) RecordAttempt(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET attempts = attempts + 1, last_attempt_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record attempt for incident %d: %w", id, err)
	}
	return nil
}

const selectIncident = `SELECT id, timestamp, service, category, severity, message, resolved, resolution, attempts, last_attempt_at FROM incidents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	inc := &models.Incident{}
	var (
		ts          string
		severity    string
		resolved    int
		resolution  sql.NullString
		lastAttempt sql.NullString
	)
	err := row.Scan(&inc.ID, &ts, &inc.Service, &inc.Category, &severity,
		&inc.Message, &resolved, &resolution, &inc.Attempts, &lastAttempt)
	if err != nil {
		return nil, err
	}
	inc.Severity = models.Severity(severity)
	inc.Resolved = resolved != 0
	inc.Timestamp, _ = parseTime(ts)
	if lastAttempt.Valid {
		inc.LastAttempt, _ = parseTime(lastAttempt.String)
	}
	if resolution.Valid && resolution.String != "" {
		var res models.Resolution
		if err := json.Unmarshal([]byte(resolution.String), &res); err == nil {
			inc.Resolution = &res
		}
	}
	return inc, nil
}

func (s *Store) queryIncidents(ctx context.Context, query string, args ...any) ([]models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var result []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inc)
	}
	return result, rows.Err()
}

// ─── Patterns ────────────────────────────────────────────────────────────────

// AppendPattern persists a new pattern and assigns its ID. Patterns are
// append-only; there is no update or delete.
func (s *Store) AppendPattern(ctx context.Context, p *models.Pattern) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO patterns(issue_pattern, remediation_template, confidence, last_used)
        VALUES(?,?,?,?)
    `, p.IssuePattern, p.RemediationTemplate, p.Confidence, p.LastUsed.UTC())
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("pattern id: %w", err)
	}
	p.ID = id
	return nil
}

// ListPatterns returns all patterns in insertion order.
func (s *Store) ListPatterns(ctx context.Context) ([]models.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_pattern, remediation_template, confidence, last_used FROM patterns ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var result []models.Pattern
	for rows.Next() {
		var p models.Pattern
		var ts string
		if err := rows.Scan(&p.ID, &p.IssuePattern, &p.RemediationTemplate, &p.Confidence, &ts); err != nil {
			return nil, err
		}
		p.LastUsed, _ = parseTime(ts)
		result = append(result, p)
	}
	return result, rows.Err()
}

// CountPatterns reports how many patterns exist (used for one-time seeding).
func (s *Store) CountPatterns(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return count, nil
}

// ─── System metrics ──────────────────────────────────────────────────────────

// RecordMetrics appends one batch of per-service resource samples.
func (s *Store) RecordMetrics(ctx context.Context, samples []models.MetricSample) error {
	for _, sample := range samples {
		_, err := s.db.ExecContext(ctx, `
            INSERT INTO system_metrics(timestamp, service, cpu_usage, memory_usage, disk_usage, network_usage)
            VALUES(?,?,?,?,?,?)
        `, sample.Timestamp.UTC(), sample.Service, sample.CPU, sample.Memory, sample.Disk, sample.Network)
		if err != nil {
			return fmt.Errorf("insert metric sample: %w", err)
		}
	}
	return nil
}

// RecentMetrics returns the latest samples, newest first.
func (s *Store) RecentMetrics(ctx context.Context, limit int) ([]models.MetricSample, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT timestamp, service, cpu_usage, memory_usage, disk_usage, network_usage FROM system_metrics ORDER BY id DESC LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var result []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		var ts string
		if err := rows.Scan(&ts, &m.Service, &m.CPU, &m.Memory, &m.Disk, &m.Network); err != nil {
			return nil, err
		}
		m.Timestamp, _ = parseTime(ts)
		result = append(result, m)
	}
	return result, rows.Err()
}

// parseTime handles the datetime formats SQLite may hand back.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
