package origin

import (
	"context"
	"io"

	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/manifest"
)

// Origin is a source of asset bytes, usually remote.
type Origin interface {
	// Name returns the identifier of this origin. It is used to build the
	// origin id of its manifest ("<name>://index.dat").
	Name() string
	// Open is part of the lifecycle behaviour and gets called before the
	// first fetch.
	Open(ctx context.Context) error
	// Close is part of the lifecycle behaviour and gets called when the
	// loader shuts down.
	Close(ctx context.Context) error

	// Fetch retrieves key. It returns data.ErrNotFound when the origin does
	// not have it and a Response with NotModified set when the conditions
	// in opts hold.
	Fetch(ctx context.Context, key string, opts FetchOptions) (*Response, error)

	// GetCapabilities returns a list of capabilities supported by this origin.
	GetCapabilities() *Capabilities
}

// FetchOptions are the conditions of a fetch.
type FetchOptions struct {
	// IfModifiedSince in milliseconds, or data.UnknownTime for an
	// unconditional fetch.
	IfModifiedSince int64
}

// Unconditional returns options for a plain fetch.
func Unconditional() FetchOptions {
	return FetchOptions{
		IfModifiedSince: data.UnknownTime,
	}
}

// Response is the result of a fetch. Body is nil when NotModified is set.
type Response struct {
	Body         io.ReadCloser
	LastModified int64
	Size         int64
	NotModified  bool
}

// Stream returns the body as a stream reporting the response's size and
// last-modified time.
func (r *Response) Stream() data.Stream {
	return data.NewMeta(r.Body, r.Size, r.LastModified)
}

// NotModifiedResponse is the response to a fetch whose conditions held.
func NotModifiedResponse(lastModified int64) *Response {
	return &Response{
		LastModified: lastModified,
		Size:         data.UnknownSize,
		NotModified:  true,
	}
}

// NotModified reports whether an asset modified at lastModified is unchanged
// since ifModifiedSince. Both are compared at whole seconds, the resolution
// of HTTP dates.
func NotModified(lastModified, ifModifiedSince int64) bool {
	if lastModified < 0 || ifModifiedSince < 0 {
		return false
	}
	return lastModified/1000 <= ifModifiedSince/1000
}

// ReaderAtCloser is random access to one stored asset.
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

// RandomAccess is implemented by origins that can read an asset at arbitrary
// offsets without downloading it whole.
type RandomAccess interface {
	OpenReaderAt(ctx context.Context, key string) (ReaderAtCloser, int64, error)
}

// Indexer is implemented by origins that can list their assets without an
// index file.
type Indexer interface {
	Entries(ctx context.Context) ([]manifest.Entry, error)
}

// Publisher is implemented by origins that accept uploads.
type Publisher interface {
	Put(ctx context.Context, key string, r io.Reader, size, lastModified int64) error
}
