package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/manifest"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Mirror persists the last good manifest of every origin in SQLite, so that a
// loader can start with a stale listing while an origin is unreachable.
type Mirror struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the mirror database at path. The path can be
// ":memory:" for a process-local mirror.
func Open(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		// Every pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	m := &Mirror{
		db: db,
	}

	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return m, nil
}

func (m *Mirror) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS manifests (
		origin TEXT PRIMARY KEY,
		last_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS manifest_entries (
		origin TEXT NOT NULL,
		name TEXT NOT NULL,
		last_modified INTEGER NOT NULL,
		size INTEGER NOT NULL,
		unprocessed_size INTEGER NOT NULL DEFAULT -1,
		PRIMARY KEY (origin, name)
	);
	`

	_, err := m.db.Exec(schema)
	return err
}

// Save replaces everything stored for the manifest's origin.
func (m *Mirror) Save(ctx context.Context, mf *manifest.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM manifest_entries WHERE origin = ?", mf.Origin()); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manifests (origin, last_modified) VALUES (?, ?)
		ON CONFLICT(origin) DO UPDATE SET last_modified = excluded.last_modified
	`, mf.Origin(), mf.LastModified()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO manifest_entries (origin, name, last_modified, size, unprocessed_size)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range mf.Entries() {
		if _, err := stmt.ExecContext(ctx, mf.Origin(), e.Name, e.LastModified, e.Size, e.UnprocessedSize); err != nil {
			return fmt.Errorf("failed to store %s: %w", e.Name, err)
		}
	}

	return tx.Commit()
}

// Load returns the mirrored manifest of origin, or data.ErrNotFound.
func (m *Mirror) Load(ctx context.Context, origin string) (*manifest.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastModified int64
	err := m.db.QueryRowContext(ctx, "SELECT last_modified FROM manifests WHERE origin = ?", origin).Scan(&lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.AssetNotFound(nil, origin)
	}
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT name, last_modified, size, unprocessed_size
		FROM manifest_entries WHERE origin = ? ORDER BY name
	`, origin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []manifest.Entry
	for rows.Next() {
		var e manifest.Entry
		if err := rows.Scan(&e.Name, &e.LastModified, &e.Size, &e.UnprocessedSize); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return manifest.New(origin, lastModified, entries...), nil
}

// Origins lists every origin with a mirrored manifest.
func (m *Mirror) Origins(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, "SELECT origin FROM manifests ORDER BY origin")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var origins []string
	for rows.Next() {
		var origin string
		if err := rows.Scan(&origin); err != nil {
			return nil, err
		}
		origins = append(origins, origin)
	}

	return origins, rows.Err()
}

func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return data.ErrClosed
	}

	err := m.db.Close()
	m.db = nil
	return err
}
