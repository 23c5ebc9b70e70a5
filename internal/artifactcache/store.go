package artifactcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"storysync/internal/config"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
    artifact_id TEXT PRIMARY KEY,
    content     TEXT NOT NULL,
    name        TEXT,
    transcript  TEXT,
    stored_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Row is one cached artifact.
type Row struct {
	ArtifactID string
	Content    string
	Name       string
	Transcript string
	StoredAt   time.Time
}

// Store manages artifact persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the artifact cache database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.ArtifactCache.Dir, "artifacts.db"))
}

// OpenPath opens the cache at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_meta WHERE key = 'schema_version'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO cache_meta (key, value) VALUES ('schema_version', ?)`,
			fmt.Sprintf("%d", schemaVersion))
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case stored != fmt.Sprintf("%d", schemaVersion):
		return fmt.Errorf("artifact cache schema version %s unsupported; clear %s", stored, s.path)
	}
	return nil
}

// Put inserts or replaces a cached artifact.
func (s *Store) Put(ctx context.Context, row Row) error {
	row.ArtifactID = strings.TrimSpace(row.ArtifactID)
	if row.ArtifactID == "" {
		return errors.New("artifact id cannot be empty")
	}
	storedAt := row.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (artifact_id, content, name, transcript, stored_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(artifact_id) DO UPDATE SET
             content = excluded.content,
             name = excluded.name,
             transcript = excluded.transcript,
             stored_at = excluded.stored_at`,
		row.ArtifactID, row.Content, row.Name, row.Transcript,
		storedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	return nil
}

// Get returns the cached artifact if present.
func (s *Store) Get(ctx context.Context, artifactID string) (*Row, error) {
	var row Row
	var storedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact_id, content, name, transcript, stored_at FROM artifacts WHERE artifact_id = ?`,
		strings.TrimSpace(artifactID),
	).Scan(&row.ArtifactID, &row.Content, &row.Name, &row.Transcript, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, storedAt); parseErr == nil {
		row.StoredAt = ts
	}
	return &row, nil
}

// Delete removes one cached artifact.
func (s *Store) Delete(ctx context.Context, artifactID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE artifact_id = ?`, strings.TrimSpace(artifactID))
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Clear removes every cached artifact.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	return nil
}

// Count reports the number of cached artifacts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return count, nil
}
