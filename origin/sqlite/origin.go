package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin"
	"github.com/tidwall/btree"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Origin serves assets stored as blobs in a SQLite database.
//
// Layer 1: In-memory B-tree of every stored name with its metadata, loaded on
// Open, so that missing assets never reach the database
// Layer 2: The assets table holding metadata and content
type Origin struct {
	mu   sync.RWMutex
	name string
	db   *sql.DB

	keys *btree.Map[string, manifest.Entry]
}

var (
	_ origin.Origin       = (*Origin)(nil)
	_ origin.RandomAccess = (*Origin)(nil)
	_ origin.Indexer      = (*Origin)(nil)
	_ origin.Publisher    = (*Origin)(nil)
)

// NewOrigin opens or creates the database at path. An empty name defaults
// to "sqlite".
func NewOrigin(name, path string) (*Origin, error) {
	if name == "" {
		name = "sqlite"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	o := &Origin{
		name: name,
		db:   db,
		keys: btree.NewMap[string, manifest.Entry](0),
	}

	if err := o.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return o, nil
}

func (o *Origin) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		name TEXT PRIMARY KEY,
		last_modified INTEGER NOT NULL,
		size INTEGER NOT NULL CHECK(size >= 0),
		content BLOB NOT NULL
	);
	`

	_, err := o.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this origin
func (o *Origin) Name() string {
	return o.name
}

// Open is part of the lifecycle behaviour and gets called before the first fetch.
func (o *Origin) Open(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.db.PingContext(ctx); err != nil {
		return errs.OriginFailed(err, o.name, "ping")
	}

	rows, err := o.db.QueryContext(ctx, "SELECT name, last_modified, size FROM assets")
	if err != nil {
		return errs.OriginFailed(err, o.name, "assets")
	}
	defer rows.Close()

	keys := btree.NewMap[string, manifest.Entry](0)
	for rows.Next() {
		var entry manifest.Entry
		if err := rows.Scan(&entry.Name, &entry.LastModified, &entry.Size); err != nil {
			return errs.OriginFailed(err, o.name, "assets")
		}
		entry.UnprocessedSize = data.UnknownSize
		keys.Set(entry.Name, entry)
	}
	if err := rows.Err(); err != nil {
		return errs.OriginFailed(err, o.name, "assets")
	}

	o.keys = keys
	return nil
}

// Close is part of the lifecycle behaviour and gets called when the loader shuts down.
func (o *Origin) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.db.Close()
}

// GetCapabilities returns a list of capabilities supported by this origin.
func (o *Origin) GetCapabilities() *origin.Capabilities {
	return &origin.Capabilities{
		Capabilities: []origin.Capability{
			origin.CapabilityFetch,
			origin.CapabilityConditional,
			origin.CapabilityRandomAccess,
			origin.CapabilityIndex,
			origin.CapabilityPublish,
		},
		// SQLite default SQLITE_MAX_LENGTH
		MaxObjectSize: 1000000000,
	}
}

func (o *Origin) lookup(key string) (manifest.Entry, error) {
	name, ok := data.CleanName(key)
	if !ok {
		return manifest.Entry{}, errs.InvalidKey(nil, key)
	}

	entry, ok := o.keys.Get(name)
	if !ok {
		return manifest.Entry{}, errs.AssetNotFound(nil, key)
	}
	return entry, nil
}

func (o *Origin) Fetch(ctx context.Context, key string, opts origin.FetchOptions) (*origin.Response, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	entry, err := o.lookup(key)
	if err != nil {
		return nil, err
	}

	if origin.NotModified(entry.LastModified, opts.IfModifiedSince) {
		return origin.NotModifiedResponse(entry.LastModified), nil
	}

	var content []byte
	err = o.db.QueryRowContext(ctx, "SELECT content FROM assets WHERE name = ?", entry.Name).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.AssetNotFound(nil, key)
		}
		return nil, errs.OriginFailed(err, o.name, key)
	}

	return &origin.Response{
		Body:         io.NopCloser(bytes.NewReader(content)),
		LastModified: entry.LastModified,
		Size:         int64(len(content)),
	}, nil
}

// OpenReaderAt reads byte ranges of the blob with substr, without loading
// the whole content.
func (o *Origin) OpenReaderAt(ctx context.Context, key string) (origin.ReaderAtCloser, int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	entry, err := o.lookup(key)
	if err != nil {
		return nil, 0, err
	}

	return &blobReader{
		ctx:  ctx,
		db:   o.db,
		name: entry.Name,
		size: entry.Size,
	}, entry.Size, nil
}

func (o *Origin) Entries(ctx context.Context) ([]manifest.Entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	entries := make([]manifest.Entry, 0, o.keys.Len())
	o.keys.Scan(func(_ string, entry manifest.Entry) bool {
		entries = append(entries, entry)
		return true
	})
	return entries, nil
}

func (o *Origin) Put(ctx context.Context, key string, r io.Reader, size, lastModified int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	name, ok := data.CleanName(key)
	if !ok {
		return errs.InvalidKey(nil, key)
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return errs.OriginFailed(err, o.name, key)
	}
	if size >= 0 && int64(len(content)) != size {
		return errs.OriginFailed(fmt.Errorf("read %d of %d bytes", len(content), size), o.name, key)
	}

	_, err = o.db.ExecContext(ctx, `
		INSERT INTO assets (name, last_modified, size, content) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_modified = excluded.last_modified,
			size = excluded.size,
			content = excluded.content
	`, name, lastModified, len(content), content)
	if err != nil {
		return errs.OriginFailed(err, o.name, key)
	}

	o.keys.Set(name, manifest.NewEntry(name, lastModified, int64(len(content))))
	return nil
}

type blobReader struct {
	ctx  context.Context
	db   *sql.DB
	name string
	size int64
}

func (b *blobReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", data.ErrInvalid)
	}
	if off >= b.size {
		return 0, io.EOF
	}

	var chunk []byte
	// substr counts from 1
	err := b.db.QueryRowContext(b.ctx, "SELECT substr(content, ?, ?) FROM assets WHERE name = ?",
		off+1, len(p), b.name).Scan(&chunk)
	if err != nil {
		return 0, err
	}

	n := copy(p, chunk)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *blobReader) Close() error {
	return nil
}
