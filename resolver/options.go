package resolver

import (
	"fmt"
	"time"

	"github.com/mwantia/assetloader/archive"
	"github.com/mwantia/assetloader/cache"
	"github.com/mwantia/assetloader/crypt"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/event"
	"github.com/mwantia/assetloader/lock"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest"
)

const (
	DefaultTolerance        = 10 * time.Second
	DefaultArchiveExtension = ".jar"
)

type ResolverOptions struct {
	Name             string
	Logger           *log.Logger
	Cache            *cache.Store
	Manifests        manifest.Provider
	Locks            *lock.Registry
	Events           event.Emitter
	Crypt            *crypt.Context
	Extractor        *archive.Extractor
	Tolerance        time.Duration
	IndexName        string
	ArchiveExtension string
	NotAuthoritative bool
	StaleOnError     bool
}

type ResolverOption func(*ResolverOptions) error

func newDefaultResolverOptions() *ResolverOptions {
	return &ResolverOptions{
		Events:           event.Nop,
		Tolerance:        DefaultTolerance,
		IndexName:        manifest.DefaultName,
		ArchiveExtension: DefaultArchiveExtension,
	}
}

// WithName overrides the origin's name in logs, metrics and the origin id of
// its manifest.
func WithName(name string) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Name = name
		return nil
	}
}

func WithLogger(logger *log.Logger) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Logger = logger
		return nil
	}
}

// WithCache tees downloads into store and serves fresh entries from it.
func WithCache(store *cache.Store) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Cache = store
		return nil
	}
}

// WithManifests sets where the current manifest snapshot comes from.
func WithManifests(provider manifest.Provider) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Manifests = provider
		return nil
	}
}

// WithLocks shares a key lock registry, usually with every other resolver of
// a loader.
func WithLocks(registry *lock.Registry) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Locks = registry
		return nil
	}
}

func WithEvents(events event.Emitter) ResolverOption {
	return func(opts *ResolverOptions) error {
		if events == nil {
			return fmt.Errorf("%w: nil event emitter", data.ErrInvalid)
		}
		opts.Events = events
		return nil
	}
}

// WithoutEvents stops the resolver from reporting download progress.
func WithoutEvents() ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Events = event.Nop
		return nil
	}
}

// WithDecryption removes the encryption envelope from every asset except the
// manifest.
func WithDecryption(c *crypt.Context) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Crypt = c
		return nil
	}
}

func WithExtractor(x *archive.Extractor) ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.Extractor = x
		return nil
	}
}

// WithTolerance sets how far the cached and the listed last-modified time may
// differ for the cached copy to count as current.
func WithTolerance(tolerance time.Duration) ResolverOption {
	return func(opts *ResolverOptions) error {
		if tolerance < 0 {
			return fmt.Errorf("%w: negative tolerance %s", data.ErrInvalid, tolerance)
		}
		opts.Tolerance = tolerance
		return nil
	}
}

func WithIndexName(name string) ResolverOption {
	return func(opts *ResolverOptions) error {
		cleaned, ok := data.CleanName(name)
		if !ok {
			return fmt.Errorf("%w: index name %q", data.ErrInvalid, name)
		}
		opts.IndexName = cleaned
		return nil
	}
}

func WithArchiveExtension(ext string) ResolverOption {
	return func(opts *ResolverOptions) error {
		if ext == "" {
			return fmt.Errorf("%w: empty archive extension", data.ErrInvalid)
		}
		opts.ArchiveExtension = ext
		return nil
	}
}

// NotAuthoritative makes the resolver ask its origin for names its manifest
// does not list.
func NotAuthoritative() ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.NotAuthoritative = true
		return nil
	}
}

// WithStaleOnError serves the cached copy, however old, when the origin
// cannot be reached.
func WithStaleOnError() ResolverOption {
	return func(opts *ResolverOptions) error {
		opts.StaleOnError = true
		return nil
	}
}
