package direct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin"
)

// Origin serves assets from a directory on a local or mounted filesystem.
type Origin struct {
	mu   sync.RWMutex
	name string
	path string
	scan manifest.ScanOptions
}

var (
	_ origin.Origin       = (*Origin)(nil)
	_ origin.RandomAccess = (*Origin)(nil)
	_ origin.Indexer      = (*Origin)(nil)
	_ origin.Publisher    = (*Origin)(nil)
)

// NewOrigin returns an origin rooted at path. An empty name defaults to
// "direct".
func NewOrigin(name, path string) (*Origin, error) {
	if name == "" {
		name = "direct"
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	return &Origin{
		name: name,
		path: abs,
		scan: manifest.ScanOptions{
			Skip: isTemp,
		},
	}, nil
}

// SetProcessedSize installs the hook Entries uses to report the size of
// processed (for example encrypted) files.
func (o *Origin) SetProcessedSize(fn func(fsys fs.FS, name string) (int64, bool, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.scan.ProcessedSize = fn
}

// Name returns the identifier name defined for this origin
func (o *Origin) Name() string {
	return o.name
}

// Path returns the root directory.
func (o *Origin) Path() string {
	return o.path
}

// Open is part of the lifecycle behaviour and gets called before the first fetch.
func (o *Origin) Open(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	info, err := os.Stat(o.path)
	if err != nil {
		return errs.OriginFailed(err, o.name, o.path)
	}

	if !info.IsDir() {
		return errs.OriginFailed(fmt.Errorf("%w: not a directory", data.ErrInvalid), o.name, o.path)
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when the loader shuts down.
func (o *Origin) Close(ctx context.Context) error {
	// The underlying filesystem persists independently
	return nil
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
	}
}

// resolvePath joins the origin path with the cleaned key.
func (o *Origin) resolvePath(key string) (string, error) {
	name, ok := data.CleanName(key)
	if !ok {
		return "", errs.InvalidKey(nil, key)
	}
	return filepath.Join(o.path, filepath.FromSlash(name)), nil
}

func (o *Origin) open(key string) (*os.File, fs.FileInfo, error) {
	full, err := o.resolvePath(key)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, errs.AssetNotFound(nil, key)
		}
		return nil, nil, errs.OriginFailed(err, o.name, key)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, errs.OriginFailed(err, o.name, key)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, nil, errs.AssetNotFound(nil, key)
	}

	return file, info, nil
}

func (o *Origin) Fetch(ctx context.Context, key string, opts origin.FetchOptions) (*origin.Response, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	file, info, err := o.open(key)
	if err != nil {
		return nil, err
	}

	lastModified := info.ModTime().UnixMilli()
	if origin.NotModified(lastModified, opts.IfModifiedSince) {
		file.Close()
		return origin.NotModifiedResponse(lastModified), nil
	}

	return &origin.Response{
		Body:         file,
		LastModified: lastModified,
		Size:         info.Size(),
	}, nil
}

func (o *Origin) OpenReaderAt(ctx context.Context, key string) (origin.ReaderAtCloser, int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	file, info, err := o.open(key)
	if err != nil {
		return nil, 0, err
	}
	return file, info.Size(), nil
}

// Entries lists every regular file below the root.
func (o *Origin) Entries(ctx context.Context) ([]manifest.Entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	entries, err := manifest.Scan(os.DirFS(o.path), ".", o.scan)
	if err != nil {
		return nil, errs.OriginFailed(err, o.name, o.path)
	}
	return entries, nil
}

// Put writes r to key through a temporary sibling that replaces the target
// once complete.
func (o *Origin) Put(ctx context.Context, key string, r io.Reader, size, lastModified int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	full, err := o.resolvePath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errs.OriginFailed(err, o.name, key)
	}

	tmp := filepath.Join(filepath.Dir(full), "."+filepath.Base(full)+"."+uuid.NewString()+".tmp")
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errs.OriginFailed(err, o.name, key)
	}

	written, err := io.Copy(file, r)
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("wrote %d of %d bytes", written, size)
	}
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err == nil && lastModified >= 0 {
		mtime := data.FromMillis(lastModified)
		err = os.Chtimes(tmp, mtime, mtime)
	}
	if err == nil {
		err = os.Rename(tmp, full)
	}
	if err != nil {
		os.Remove(tmp)
		return errs.OriginFailed(err, o.name, key)
	}

	return nil
}

func isTemp(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".tmp")
}
