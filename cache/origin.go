package cache

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin"
)

// Origin serves assets straight from a cache store, so that previously
// downloaded assets stay available while every remote origin is offline.
type Origin struct {
	store *Store
}

var (
	_ origin.Origin       = (*Origin)(nil)
	_ origin.RandomAccess = (*Origin)(nil)
	_ origin.Indexer      = (*Origin)(nil)
)

func NewOrigin(store *Store) *Origin {
	return &Origin{
		store: store,
	}
}

// Name returns the identifier name defined for this origin
func (*Origin) Name() string {
	return "cache"
}

// Open is part of the lifecycle behaviour and gets called before the first fetch.
func (o *Origin) Open(ctx context.Context) error {
	info, err := os.Stat(o.store.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return data.ErrInvalid
	}
	return nil
}

// Close is part of the lifecycle behaviour and gets called when the loader shuts down.
func (o *Origin) Close(ctx context.Context) error {
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
		},
	}
}

func (o *Origin) Fetch(ctx context.Context, key string, opts origin.FetchOptions) (*origin.Response, error) {
	info, err := o.store.stat(key)
	if err != nil {
		return nil, err
	}

	lastModified := info.ModTime().UnixMilli()
	if origin.NotModified(lastModified, opts.IfModifiedSince) {
		return origin.NotModifiedResponse(lastModified), nil
	}

	stream, err := o.store.Open(key)
	if err != nil {
		return nil, err
	}

	return &origin.Response{
		Body:         stream,
		LastModified: data.LastModifiedOf(stream),
		Size:         data.SizeOf(stream),
	}, nil
}

func (o *Origin) OpenReaderAt(ctx context.Context, key string) (origin.ReaderAtCloser, int64, error) {
	full, err := o.store.Path(key)
	if err != nil {
		return nil, 0, err
	}

	if _, err := o.store.stat(key); err != nil {
		return nil, 0, err
	}

	file, err := os.Open(full)
	if err != nil {
		return nil, 0, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}

	return file, info.Size(), nil
}

// Entries lists every completed cache file.
func (o *Origin) Entries(ctx context.Context) ([]manifest.Entry, error) {
	return manifest.Scan(os.DirFS(o.store.root), ".", manifest.ScanOptions{
		Skip: isTemp,
	})
}

// isTemp reports whether name is an in-progress tee file.
func isTemp(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".tmp")
}
