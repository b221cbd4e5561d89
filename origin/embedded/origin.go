package embedded

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin"
)

// Origin serves assets bundled with the program, typically an embed.FS.
type Origin struct {
	name string
	fsys fs.FS
}

var (
	_ origin.Origin       = (*Origin)(nil)
	_ origin.RandomAccess = (*Origin)(nil)
	_ origin.Indexer      = (*Origin)(nil)
)

// NewOrigin serves fsys below root ("" or "." for all of it). An empty name
// defaults to "embedded".
func NewOrigin(name string, fsys fs.FS, root string) (*Origin, error) {
	if name == "" {
		name = "embedded"
	}

	if root != "" && root != "." {
		sub, err := fs.Sub(fsys, root)
		if err != nil {
			return nil, errs.InvalidKey(err, root)
		}
		fsys = sub
	}

	return &Origin{
		name: name,
		fsys: fsys,
	}, nil
}

// Name returns the identifier name defined for this origin
func (o *Origin) Name() string {
	return o.name
}

func (o *Origin) Open(ctx context.Context) error {
	if _, err := fs.Stat(o.fsys, "."); err != nil {
		return errs.OriginFailed(err, o.name, ".")
	}
	return nil
}

func (o *Origin) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this origin.
func (o *Origin) GetCapabilities() *origin.Capabilities {
	return &origin.Capabilities{
		Capabilities: []origin.Capability{
			origin.CapabilityFetch,
			origin.CapabilityConditional,
			origin.CapabilityIndex,
		},
	}
}

func (o *Origin) open(key string) (fs.File, fs.FileInfo, error) {
	name, ok := data.CleanName(key)
	if !ok {
		return nil, nil, errs.InvalidKey(nil, key)
	}

	file, err := o.fsys.Open(name)
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
	file, info, err := o.open(key)
	if err != nil {
		return nil, err
	}

	// embed.FS reports the zero time for every file.
	lastModified := data.ToMillis(info.ModTime())
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

// OpenReaderAt offers random access when the underlying file supports it.
func (o *Origin) OpenReaderAt(ctx context.Context, key string) (origin.ReaderAtCloser, int64, error) {
	file, info, err := o.open(key)
	if err != nil {
		return nil, 0, err
	}

	ra, ok := file.(io.ReaderAt)
	if !ok {
		file.Close()
		return nil, 0, errs.Unsupported(o.name, "random access")
	}

	return readerAt{ReaderAt: ra, Closer: file}, info.Size(), nil
}

func (o *Origin) Entries(ctx context.Context) ([]manifest.Entry, error) {
	return manifest.Scan(o.fsys, ".", manifest.ScanOptions{})
}

type readerAt struct {
	io.ReaderAt
	io.Closer
}
