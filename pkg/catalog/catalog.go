// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package catalog is the transactional relational store of snapshot
// metadata: the sole source of truth for cache hits, in-progress builders,
// and eviction candidates. A single table, one uniqueness constraint on
// (repo_url, version, backend), and single-row transactions are the whole
// of its concurrency story — cross-process coordination needs nothing
// more.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Status is one of the three states a SnapshotRecord may be in.
type Status string

const (
	StatusBuilding  Status = "building"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SnapshotRecord is one row of the snapshots table: §3.1 of the data
// model.
type SnapshotRecord struct {
	ID                  string
	RepoURL             string
	RepoName            string
	Version             string
	Backend             string
	Status              Status
	NodeCount           int64
	EdgeCount           int64
	FuzzerNames         []string
	Language            string
	AnalysisDurationSec float64
	SizeBytes           int64
	Error               string
	CreatedAt           time.Time
	LastAccessedAt      time.Time
	AccessCount         int64
}

// Outcome tags the result of acquire_or_wait.
type Outcome int

const (
	// Hit means an existing completed record was found and returned.
	Hit Outcome = iota
	// Wait means a build is already in progress; the caller should poll
	// wait_until_ready.
	Wait
	// Own means the caller inserted a fresh building row and must perform
	// the build itself.
	Own
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "HIT"
	case Wait:
		return "WAIT"
	case Own:
		return "OWN"
	default:
		return "UNKNOWN"
	}
}

// AcquireResult is the return value of AcquireOrWait.
type AcquireResult struct {
	Outcome Outcome
	Record  SnapshotRecord
}

// Catalog is the admission coordinator and metadata store described in
// spec.md §4.1. It is safe for concurrent use by multiple goroutines and,
// via the database's own locking, by multiple processes sharing the same
// DSN.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger

	staleDeadline time.Duration
}

// Option configures a Catalog at construction time.
type Option func(*Catalog)

// WithStaleDeadline overrides the default 30-minute stale-builder
// deadline.
func WithStaleDeadline(d time.Duration) Option {
	return func(c *Catalog) { c.staleDeadline = d }
}

// WithLogger attaches a structured logger; a discard logger is used if
// omitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// Open opens (and, if necessary, creates) the catalog database at dsn.
// dsn is a modernc.org/sqlite data source, e.g. a file path or ":memory:".
func Open(dsn string, opts ...Option) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	// SQLite tolerates one writer at a time; the admission story relies on
	// genuinely serialized writes, not optimistic retries.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db, logger: slog.Default(), staleDeadline: 30 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) ensureSchema() error {
	_, err := c.db.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
	id                      TEXT PRIMARY KEY,
	repo_url                TEXT NOT NULL,
	repo_name               TEXT NOT NULL,
	version                 TEXT NOT NULL,
	backend                 TEXT NOT NULL,
	status                  TEXT NOT NULL,
	node_count              INTEGER NOT NULL DEFAULT 0,
	edge_count              INTEGER NOT NULL DEFAULT 0,
	fuzzer_names            TEXT NOT NULL DEFAULT '',
	language                TEXT NOT NULL DEFAULT '',
	analysis_duration_sec   REAL NOT NULL DEFAULT 0,
	size_bytes              INTEGER NOT NULL DEFAULT 0,
	error                   TEXT NOT NULL DEFAULT '',
	created_at              TEXT NOT NULL,
	last_accessed_at        TEXT NOT NULL,
	access_count            INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS snapshots_identity ON snapshots(repo_url, version, backend);
CREATE INDEX IF NOT EXISTS snapshots_last_accessed ON snapshots(last_accessed_at);
CREATE INDEX IF NOT EXISTS snapshots_repo_url ON snapshots(repo_url);
`)
	if err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

// AcquireOrWait implements spec.md §4.1's admission rendezvous.
//
// It first resolves any stale building row for this key (older than the
// configured stale deadline) to failed, and deletes any failed row, then
// attempts to observe a completed or building row; failing that, it
// inserts a fresh building row and returns Own. The insert's uniqueness
// constraint is the actual admission lock: a loser of the race observes
// ErrConstraint and falls back to re-reading the winner's row.
func (c *Catalog) AcquireOrWait(ctx context.Context, repoURL, version, backend string) (AcquireResult, error) {
	if err := c.reapStale(ctx, repoURL, version, backend); err != nil {
		return AcquireResult{}, err
	}

	existing, err := c.find(ctx, repoURL, version, backend)
	if err != nil {
		return AcquireResult{}, err
	}
	if existing != nil {
		switch existing.Status {
		case StatusCompleted:
			if err := c.touch(ctx, existing.ID); err != nil {
				return AcquireResult{}, err
			}
			existing.AccessCount++
			return AcquireResult{Outcome: Hit, Record: *existing}, nil
		case StatusBuilding:
			return AcquireResult{Outcome: Wait, Record: *existing}, nil
		case StatusFailed:
			if err := c.delete(ctx, existing.ID); err != nil {
				return AcquireResult{}, err
			}
		}
	}

	rec := SnapshotRecord{
		ID:              uuid.NewString(),
		RepoURL:         repoURL,
		RepoName:        repoName(repoURL),
		Version:         version,
		Backend:         backend,
		Status:          StatusBuilding,
		CreatedAt:       time.Now().UTC(),
		LastAccessedAt:  time.Now().UTC(),
	}

	_, err = c.db.ExecContext(ctx, `
INSERT INTO snapshots (id, repo_url, repo_name, version, backend, status, created_at, last_accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RepoURL, rec.RepoName, rec.Version, rec.Backend, string(rec.Status),
		rec.CreatedAt.Format(timeLayout), rec.LastAccessedAt.Format(timeLayout))
	if err != nil {
		// Lost the admission race: someone else inserted between our find
		// and our insert. Re-read and report what they are doing.
		winner, findErr := c.find(ctx, repoURL, version, backend)
		if findErr != nil {
			return AcquireResult{}, findErr
		}
		if winner == nil {
			return AcquireResult{}, fmt.Errorf("admission race: insert failed and no winning row found: %w", err)
		}
		if winner.Status == StatusCompleted {
			return AcquireResult{Outcome: Hit, Record: *winner}, nil
		}
		return AcquireResult{Outcome: Wait, Record: *winner}, nil
	}

	c.logger.Info("catalog.admission.own", "snapshot_id", rec.ID, "repo_url", repoURL, "version", version)
	return AcquireResult{Outcome: Own, Record: rec}, nil
}

func repoName(repoURL string) string {
	for i := len(repoURL) - 1; i >= 0; i-- {
		if repoURL[i] == '/' {
			name := repoURL[i+1:]
			if len(name) > 4 && name[len(name)-4:] == ".git" {
				name = name[:len(name)-4]
			}
			return name
		}
	}
	return repoURL
}

// reapStale transitions a building row older than the stale deadline to
// failed with a timeout error, per spec.md §4.1 and §5.
func (c *Catalog) reapStale(ctx context.Context, repoURL, version, backend string) error {
	rec, err := c.find(ctx, repoURL, version, backend)
	if err != nil || rec == nil || rec.Status != StatusBuilding {
		return err
	}
	if time.Since(rec.CreatedAt) <= c.staleDeadline {
		return nil
	}
	c.logger.Warn("catalog.admission.stale_builder_reaped", "snapshot_id", rec.ID)
	return c.MarkFailed(ctx, rec.ID, "stale builder: exceeded deadline without completing")
}

func (c *Catalog) find(ctx context.Context, repoURL, version, backend string) (*SnapshotRecord, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT id, repo_url, repo_name, version, backend, status, node_count, edge_count,
       fuzzer_names, language, analysis_duration_sec, size_bytes, error,
       created_at, last_accessed_at, access_count
FROM snapshots WHERE repo_url = ? AND version = ? AND backend = ?`, repoURL, version, backend)
	return scanRecord(row)
}

// Get fetches a snapshot record by id.
func (c *Catalog) Get(ctx context.Context, id string) (*SnapshotRecord, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT id, repo_url, repo_name, version, backend, status, node_count, edge_count,
       fuzzer_names, language, analysis_duration_sec, size_bytes, error,
       created_at, last_accessed_at, access_count
FROM snapshots WHERE id = ?`, id)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	var status, fuzzerNames, createdAt, lastAccessedAt string
	err := row.Scan(&rec.ID, &rec.RepoURL, &rec.RepoName, &rec.Version, &rec.Backend, &status,
		&rec.NodeCount, &rec.EdgeCount, &fuzzerNames, &rec.Language, &rec.AnalysisDurationSec,
		&rec.SizeBytes, &rec.Error, &createdAt, &lastAccessedAt, &rec.AccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot row: %w", err)
	}
	rec.Status = Status(status)
	rec.FuzzerNames = splitNonEmpty(fuzzerNames)
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.LastAccessedAt, _ = time.Parse(timeLayout, lastAccessedAt)
	return &rec, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

func (c *Catalog) touch(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE snapshots SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id)
	return err
}

// MarkCompleted transitions a building row to completed. It is idempotent
// and rejects the transition if the row's current status is not building.
func (c *Catalog) MarkCompleted(ctx context.Context, id string, nodeCount, edgeCount int64, fuzzerNames []string, durationSec float64, sizeBytes int64) error {
	res, err := c.db.ExecContext(ctx, `
UPDATE snapshots
SET status = ?, node_count = ?, edge_count = ?, fuzzer_names = ?, analysis_duration_sec = ?, size_bytes = ?
WHERE id = ? AND status = ?`,
		string(StatusCompleted), nodeCount, edgeCount, joinNames(fuzzerNames), durationSec, sizeBytes,
		id, string(StatusBuilding))
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		c.logger.Debug("catalog.mark_completed.no_op", "snapshot_id", id)
	}
	return nil
}

// MarkFailed transitions a building row to failed, recording the error. It
// is idempotent and permitted only from building.
func (c *Catalog) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := c.db.ExecContext(ctx, `
UPDATE snapshots SET status = ?, error = ? WHERE id = ? AND status = ?`,
		string(StatusFailed), errMsg, id, string(StatusBuilding))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// WaitUntilReady blocks, polling at pollInterval, until the record reaches
// completed or failed, or overallDeadline elapses (in which case it
// returns a timeout error). A failed status is returned without error so
// the caller may retry via AcquireOrWait.
func (c *Catalog) WaitUntilReady(ctx context.Context, id string, pollInterval, overallDeadline time.Duration) (*SnapshotRecord, error) {
	deadline := time.Now().Add(overallDeadline)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		rec, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("wait_until_ready: snapshot %s not found", id)
		}
		if rec.Status == StatusCompleted || rec.Status == StatusFailed {
			return rec, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("wait_until_ready: %w", timeoutErr{id: id})
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type timeoutErr struct{ id string }

func (e timeoutErr) Error() string {
	return fmt.Sprintf("overall deadline elapsed waiting for snapshot %s", e.id)
}

func (c *Catalog) delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	return err
}

// Delete removes the catalog row for id. Callers evicting a snapshot must
// call this only after the graph subtree and log streams have already
// been removed, per spec.md §4.2's serialized deletion order.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.delete(ctx, id)
}

// ListCompletedByRepo returns completed snapshots for repoURL ordered by
// last_accessed_at ascending (LRU first), used by per-repo retention-cap
// eviction.
func (c *Catalog) ListCompletedByRepo(ctx context.Context, repoURL string) ([]SnapshotRecord, error) {
	return c.queryRecords(ctx, `
SELECT id, repo_url, repo_name, version, backend, status, node_count, edge_count,
       fuzzer_names, language, analysis_duration_sec, size_bytes, error,
       created_at, last_accessed_at, access_count
FROM snapshots WHERE repo_url = ? AND status = ? ORDER BY last_accessed_at ASC`, repoURL, string(StatusCompleted))
}

// ListAllCompletedByAccess returns every completed snapshot ordered by
// last_accessed_at ascending, used by disk-pressure eviction.
func (c *Catalog) ListAllCompletedByAccess(ctx context.Context) ([]SnapshotRecord, error) {
	return c.queryRecords(ctx, `
SELECT id, repo_url, repo_name, version, backend, status, node_count, edge_count,
       fuzzer_names, language, analysis_duration_sec, size_bytes, error,
       created_at, last_accessed_at, access_count
FROM snapshots WHERE status = ? ORDER BY last_accessed_at ASC`, string(StatusCompleted))
}

// ListExpiredByTTL returns completed snapshots whose last_accessed_at is
// older than ttlDays.
func (c *Catalog) ListExpiredByTTL(ctx context.Context, ttlDays int) ([]SnapshotRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -ttlDays).Format(timeLayout)
	return c.queryRecords(ctx, `
SELECT id, repo_url, repo_name, version, backend, status, node_count, edge_count,
       fuzzer_names, language, analysis_duration_sec, size_bytes, error,
       created_at, last_accessed_at, access_count
FROM snapshots WHERE status = ? AND last_accessed_at < ?`, string(StatusCompleted), cutoff)
}

func (c *Catalog) queryRecords(ctx context.Context, query string, args ...any) ([]SnapshotRecord, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var status, fuzzerNames, createdAt, lastAccessedAt string
		if err := rows.Scan(&rec.ID, &rec.RepoURL, &rec.RepoName, &rec.Version, &rec.Backend, &status,
			&rec.NodeCount, &rec.EdgeCount, &fuzzerNames, &rec.Language, &rec.AnalysisDurationSec,
			&rec.SizeBytes, &rec.Error, &createdAt, &lastAccessedAt, &rec.AccessCount); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		rec.Status = Status(status)
		rec.FuzzerNames = splitNonEmpty(fuzzerNames)
		rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		rec.LastAccessedAt, _ = time.Parse(timeLayout, lastAccessedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
