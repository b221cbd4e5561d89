package resolver

import (
	"context"
	"errors"

	"github.com/mwantia/assetloader/archive"
	"github.com/mwantia/assetloader/cache"
	"github.com/mwantia/assetloader/crypt"
	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/event"
	"github.com/mwantia/assetloader/lock"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/metrics"
	"github.com/mwantia/assetloader/origin"
)

// Resolver turns asset names into streams from one origin. It decides
// between the cache and the origin using the manifests, downloads
// conditionally, and composes caching, archive extraction and decryption
// around the result. Every returned stream holds the key lock of its name
// until it is closed.
type Resolver struct {
	origin origin.Origin
	name   string
	logger *log.Logger

	cache     *cache.Store
	manifests manifest.Provider
	locks     *lock.Registry
	events    event.Emitter
	crypt     *crypt.Context
	extractor *archive.Extractor

	options *ResolverOptions
}

// resolution is the state of one Locate call.
type resolution struct {
	// key is the requested name, target the name fetched from the origin.
	// They differ for members of an archive.
	key    string
	target string
	member string

	entry  manifest.Entry
	listed bool
	index  bool

	cachedAt int64
	cached   bool
}

// New creates a resolver for o.
func New(o origin.Origin, opts ...ResolverOption) (*Resolver, error) {
	if o == nil {
		return nil, errs.InvalidKey(nil, "origin")
	}

	options := newDefaultResolverOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	name := options.Name
	if name == "" {
		name = o.Name()
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	manifests := options.Manifests
	if manifests == nil {
		manifests = manifest.NewIndex()
	}

	locks := options.Locks
	if locks == nil {
		locks = lock.NewRegistry(logger)
	}

	extractor := options.Extractor
	if extractor == nil {
		extractor = archive.NewExtractor("", logger)
	}

	// A cache origin already serves cached bytes.
	if _, ok := o.(*cache.Origin); ok && options.Cache != nil {
		logger.Debug("New: %s reads from the cache, not teeing into it", name)
		options.Cache = nil
	}

	return &Resolver{
		origin:    o,
		name:      name,
		logger:    logger,
		cache:     options.Cache,
		manifests: manifests,
		locks:     locks,
		events:    options.Events,
		crypt:     options.Crypt,
		extractor: extractor,
		options:   options,
	}, nil
}

func (r *Resolver) Name() string {
	return r.name
}

func (r *Resolver) Origin() origin.Origin {
	return r.origin
}

// OriginID identifies the manifest this resolver's origin publishes.
func (r *Resolver) OriginID() string {
	return r.name + "://" + r.options.IndexName
}

func (r *Resolver) Open(ctx context.Context) error {
	return r.origin.Open(ctx)
}

func (r *Resolver) Close(ctx context.Context) error {
	return r.origin.Close(ctx)
}

// Authoritative reports whether snapshot holds this origin's own manifest,
// which then lists everything the origin has.
func (r *Resolver) Authoritative(snapshot *manifest.Set) bool {
	return !r.options.NotAuthoritative && snapshot.HasOrigin(r.OriginID())
}

// Locate resolves name to a stream. An asset nobody has yields
// data.ErrNotFound. The key lock of name is held, for the lock owner carried
// by ctx, until the stream is closed.
func (r *Resolver) Locate(ctx context.Context, name string) (data.Stream, error) {
	key, ok := data.CleanName(name)
	if !ok {
		return nil, errs.InvalidKey(nil, name)
	}

	ctx = lock.EnsureOwner(ctx)
	snapshot := r.manifests.Snapshot()

	if err := r.locks.Acquire(ctx, key); err != nil {
		return nil, err
	}

	stream, outcome, err := r.locate(ctx, key, snapshot)
	metrics.RecordResolution(r.name, outcome)
	if err != nil {
		if rerr := r.locks.Release(ctx, key); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}

	return r.locks.Guard(ctx, key, stream), nil
}

func (r *Resolver) locate(ctx context.Context, key string, snapshot *manifest.Set) (data.Stream, string, error) {
	res := &resolution{
		key:      key,
		target:   key,
		index:    key == r.options.IndexName,
		cachedAt: data.UnknownTime,
	}

	if !res.index {
		res.entry, res.listed = snapshot.Lookup(key)
		if !res.listed {
			if container, member, entry, ok := snapshot.ArchiveFor(key, r.options.ArchiveExtension); ok {
				r.logger.Debug("Locate: %s is member %s of %s", key, member, container)
				res.target, res.member, res.entry, res.listed = container, member, entry, true
			}
		}

		if !res.listed && r.Authoritative(snapshot) {
			r.logger.Debug("Locate: %s is not listed by %s", key, r.OriginID())
			return nil, metrics.OutcomeNotFound, errs.AssetNotFound(nil, key)
		}

		if r.cache != nil {
			res.cachedAt, res.cached = r.cache.ModTime(res.target)
		}

		if r.fresh(res) {
			stream, err := r.fromCache(ctx, res)
			if err == nil {
				r.logger.Debug("Locate: serving %s from cache", key)
				return stream, metrics.OutcomeCache, nil
			}
			if !errors.Is(err, data.ErrNotFound) {
				r.logger.Warn("Locate: dropping unreadable cached %s: %v", res.target, err)
				if rerr := r.cache.Remove(res.target); rerr != nil {
					return nil, metrics.OutcomeError, errors.Join(err, rerr)
				}
			}
			res.cached = false
			res.cachedAt = data.UnknownTime
		}

		// With a cache the container is downloaded once and teed, so later
		// members are read from the local copy.
		if res.member != "" && r.cache == nil {
			if ra, ok := r.origin.(origin.RandomAccess); ok {
				stream, err := r.fromRandomAccess(ctx, res, ra)
				if err != nil {
					return nil, r.outcomeOf(err), err
				}
				return stream, metrics.OutcomeNetwork, nil
			}
		}
	}

	return r.fetch(ctx, res)
}

// fresh reports whether the cached copy matches the listed last-modified time
// within the tolerance.
func (r *Resolver) fresh(res *resolution) bool {
	if !res.cached || !res.listed || res.entry.LastModified < 0 {
		return false
	}

	diff := res.entry.LastModified - res.cachedAt
	if diff < 0 {
		diff = -diff
	}
	return diff < r.options.Tolerance.Milliseconds()
}

func (r *Resolver) fetch(ctx context.Context, res *resolution) (data.Stream, string, error) {
	opts := origin.Unconditional()
	if res.cached {
		opts.IfModifiedSince = res.cachedAt
	}

	resp, err := r.origin.Fetch(ctx, res.target, opts)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrNotFound):
			r.logger.Debug("Locate: %s not found on %s", res.target, r.name)
			return nil, metrics.OutcomeNotFound, err
		case errors.Is(err, data.ErrInvalid):
			return nil, metrics.OutcomeError, err
		}

		r.logger.Warn("Locate: %s unreachable on %s: %v", res.target, r.name, err)
		if r.options.StaleOnError && res.cached {
			stream, serr := r.fromCache(ctx, res)
			if serr == nil {
				r.logger.Info("Locate: serving stale %s from cache", res.key)
				return stream, metrics.OutcomeStale, nil
			}
		}
		return nil, metrics.OutcomeNotFound, errs.AssetNotFound(err, res.key)
	}

	if resp.NotModified {
		if r.cache == nil || !res.cached {
			return nil, metrics.OutcomeError, errs.LoadFailed(nil, "unexpected not-modified response for %s from %s", res.target, r.name)
		}

		r.logger.Debug("Locate: %s has not changed, using cached version", res.target)
		stream, err := r.fromCache(ctx, res)
		if err != nil {
			return nil, r.outcomeOf(err), err
		}
		return stream, metrics.OutcomeCache, nil
	}

	stream, err := r.network(ctx, res).Run(resp.Stream())
	if err != nil {
		return nil, r.outcomeOf(err), err
	}
	return stream, metrics.OutcomeNetwork, nil
}

// network assembles the stages applied to a downloaded stream.
func (r *Resolver) network(ctx context.Context, res *resolution) *Pipeline {
	p := &Pipeline{}

	p.Then("count", func(in data.Stream) (data.Stream, error) {
		return newCounting(in, r.events, res.key, data.SizeOf(in)), nil
	})

	if r.cache != nil && !res.index {
		p.Then("cache", func(in data.Stream) (data.Stream, error) {
			out, err := r.cache.Write(res.target, in, data.LastModifiedOf(in))
			if err != nil {
				r.logger.Warn("Locate: not caching %s: %v", res.target, err)
				return in, nil
			}
			return out, nil
		})
	}

	if res.member != "" {
		p.Then("archive", func(in data.Stream) (data.Stream, error) {
			return r.extractor.Extract(ctx, archive.Source{
				Container: res.target,
				Member:    res.member,
				OpenStream: func(ctx context.Context) (data.Stream, error) {
					return in, nil
				},
			})
		})
	}

	r.decrypt(p, res)
	return p
}

// fromCache serves the cached copy of the target.
func (r *Resolver) fromCache(ctx context.Context, res *resolution) (data.Stream, error) {
	p := &Pipeline{}

	if res.member != "" {
		full, err := r.cache.Path(res.target)
		if err != nil {
			return nil, err
		}

		stream, err := r.extractor.Extract(ctx, archive.Source{
			Container: res.target,
			Member:    res.member,
			LocalPath: full,
		})
		if err != nil {
			return nil, err
		}

		r.decrypt(p, res)
		return p.Run(stream)
	}

	stream, err := r.cache.Open(res.target)
	if err != nil {
		return nil, err
	}

	r.decrypt(p, res)
	return p.Run(stream)
}

// fromRandomAccess extracts a member without downloading its container.
func (r *Resolver) fromRandomAccess(ctx context.Context, res *resolution, ra origin.RandomAccess) (data.Stream, error) {
	stream, err := r.extractor.Extract(ctx, archive.Source{
		Container: res.target,
		Member:    res.member,
		OpenReaderAt: func(ctx context.Context) (archive.ReaderAtCloser, int64, error) {
			return ra.OpenReaderAt(ctx, res.target)
		},
	})
	if err != nil {
		return nil, err
	}

	p := &Pipeline{}
	r.decrypt(p, res)
	return p.Run(stream)
}

func (r *Resolver) decrypt(p *Pipeline, res *resolution) {
	if r.crypt == nil || res.index {
		return
	}

	p.Then("decrypt", func(in data.Stream) (data.Stream, error) {
		out, err := crypt.NewReader(in, r.crypt)
		if err != nil {
			in.Close()
			return nil, err
		}
		return out, nil
	})
}

func (r *Resolver) outcomeOf(err error) string {
	if errors.Is(err, data.ErrNotFound) {
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeError
}

// Index loads the manifest the origin publishes under the index name. An
// origin without one but able to list its assets gets a manifest built from
// that listing.
func (r *Resolver) Index(ctx context.Context) (*manifest.Manifest, error) {
	stream, err := r.Locate(ctx, r.options.IndexName)
	if err == nil {
		defer stream.Close()

		m, err := manifest.Parse(stream, r.OriginID(), data.LastModifiedOf(stream), r.logger)
		if err != nil {
			return nil, errs.LoadFailed(err, "failed to read %s", r.OriginID())
		}
		return m, nil
	}

	if !errors.Is(err, data.ErrNotFound) {
		return nil, err
	}

	indexer, ok := r.origin.(origin.Indexer)
	if !ok {
		return nil, err
	}

	r.logger.Debug("Index: %s has no %s, listing entries", r.name, r.options.IndexName)
	entries, lerr := indexer.Entries(ctx)
	if lerr != nil {
		return nil, lerr
	}

	return manifest.New(r.OriginID(), data.UnknownTime, entries...), nil
}
