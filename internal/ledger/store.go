// Package ledger keeps a local SQLite record of every destination outcome so
// released versions are never deployed twice and history can be listed.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/relpub/internal/coordinate"
)

// Status values stored per entry.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Entry is one destination outcome of one publish run.
type Entry struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	GroupID        string    `json:"group_id"`
	ArtifactID     string    `json:"artifact_id"`
	Version        string    `json:"version"`
	Classification string    `json:"classification"`
	Destination    string    `json:"destination"`
	Location       string    `json:"location,omitempty"`
	Status         string    `json:"status"`
	Category       string    `json:"category,omitempty"`
	Message        string    `json:"message,omitempty"`
	PrimarySHA256  string    `json:"primary_sha256,omitempty"`
	Attempts       int       `json:"attempts"`
	DurationMS     int64     `json:"duration_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Store is the SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// Open opens or creates the ledger at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, wrap(ErrDatabaseOpenFailed, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS publications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		version TEXT NOT NULL,
		classification TEXT NOT NULL,
		destination TEXT NOT NULL,
		location TEXT,
		status TEXT NOT NULL,
		category TEXT,
		message TEXT,
		primary_sha256 TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_publications_gav ON publications(group_id, artifact_id, version);
	CREATE INDEX IF NOT EXISTS idx_publications_run ON publications(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends an entry. RecordedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO publications
		(run_id, group_id, artifact_id, version, classification, destination, location,
		 status, category, message, primary_sha256, attempts, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.GroupID, e.ArtifactID, e.Version, e.Classification, e.Destination, e.Location,
		e.Status, e.Category, e.Message, e.PrimarySHA256, e.Attempts, e.DurationMS, e.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return wrap(ErrRecordFailed, err)
	}
	return nil
}

// IsPublished reports whether coord was successfully published to destination.
func (s *Store) IsPublished(ctx context.Context, coord coordinate.Coordinate, destination string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publications
		WHERE group_id = ? AND artifact_id = ? AND version = ? AND destination = ? AND status = ?`,
		coord.GroupID, coord.ArtifactID, coord.Version, destination, StatusSuccess,
	).Scan(&n)
	if err != nil {
		return false, wrap(ErrQueryFailed, err)
	}
	return n > 0, nil
}

// History lists entries for a group/artifact, oldest first. An empty version
// returns every version.
func (s *Store) History(ctx context.Context, groupID, artifactID, version string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, run_id, group_id, artifact_id, version, classification, destination,
		COALESCE(location, ''), status, COALESCE(category, ''), COALESCE(message, ''),
		COALESCE(primary_sha256, ''), attempts, duration_ms, recorded_at
		FROM publications WHERE group_id = ? AND artifact_id = ?`
	args := []any{groupID, artifactID}
	if version != "" {
		query += " AND version = ?"
		args = append(args, version)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recorded int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.GroupID, &e.ArtifactID, &e.Version, &e.Classification,
			&e.Destination, &e.Location, &e.Status, &e.Category, &e.Message, &e.PrimarySHA256,
			&e.Attempts, &e.DurationMS, &recorded); err != nil {
			return nil, wrap(ErrQueryFailed, err)
		}
		e.RecordedAt = time.UnixMilli(recorded)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrQueryFailed, err)
	}
	return entries, nil
}

// LatestRelease returns the highest successfully published release version by
// semantic version order. Versions that do not parse only win when none does.
func (s *Store) LatestRelease(ctx context.Context, groupID, artifactID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT version FROM publications
		WHERE group_id = ? AND artifact_id = ? AND status = ? AND classification = ?`,
		groupID, artifactID, StatusSuccess, coordinate.Release.String())
	if err != nil {
		return "", false, wrap(ErrQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", false, wrap(ErrQueryFailed, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return "", false, wrap(ErrQueryFailed, err)
	}
	if len(versions) == 0 {
		return "", false, nil
	}
	return latestVersion(versions), true, nil
}

// latestVersion sorts versions with compareVersions and returns the last one
// that parses, falling back to the last one overall.
func latestVersion(versions []string) string {
	slices.SortFunc(versions, compareVersions)
	for i := len(versions) - 1; i >= 0; i-- {
		if _, err := semver.NewVersion(versions[i]); err == nil {
			return versions[i]
		}
	}
	return versions[len(versions)-1]
}

// compareVersions orders parseable versions first by semantic version, then
// the rest by string. Equal semantic versions spelled differently ("1.0" and
// "1.0.0") are ordered by string too.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
