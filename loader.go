package assetloader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/event"
	"github.com/mwantia/assetloader/lock"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/manifest/mirror"
	"github.com/mwantia/assetloader/metrics"
	"github.com/mwantia/assetloader/origin"
	"github.com/mwantia/assetloader/resolver"
)

// Locator is one place assets are looked up in. Locate returns
// data.ErrNotFound when the locator does not have the asset.
type Locator interface {
	Name() string
	Locate(ctx context.Context, name string) (data.Stream, error)
}

// Indexer is implemented by locators that publish a manifest.
type Indexer interface {
	OriginID() string
	Index(ctx context.Context) (*manifest.Manifest, error)
}

// Lifecycle is implemented by locators holding connections.
type Lifecycle interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Loader resolves asset names against its locators in registration order and
// keeps the merged manifest of all of them.
type Loader struct {
	mu       sync.RWMutex
	locators []Locator

	logger    *log.Logger
	manifests *manifest.Index
	locks     *lock.Registry
	events    *event.Bus
	mirror    *mirror.Mirror
}

func New(opts ...LoaderOption) (*Loader, error) {
	options := newDefaultLoaderOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewLogger("assetloader", options.LogLevel, options.LogFile, options.NoTerminalLog)
	}

	locks := options.Locks
	if locks == nil {
		locks = lock.NewRegistry(logger.Named("lock"))
	}

	return &Loader{
		logger:    logger,
		manifests: manifest.NewIndex(),
		locks:     locks,
		events:    event.NewBus(),
		mirror:    options.Mirror,
	}, nil
}

func (l *Loader) Logger() *log.Logger {
	return l.logger
}

func (l *Loader) Locks() *lock.Registry {
	return l.locks
}

// Register appends loc to the locators. Names must be unique.
func (l *Loader) Register(loc Locator) error {
	if loc == nil {
		return fmt.Errorf("%w: nil locator", data.ErrInvalid)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.locators {
		if existing.Name() == loc.Name() {
			return fmt.Errorf("%w: locator %q already registered", data.ErrInvalid, loc.Name())
		}
	}

	l.locators = append(l.locators, loc)
	l.logger.Debug("Register: added locator %s at position %d", loc.Name(), len(l.locators))
	return nil
}

// Attach builds a resolver for o that shares the loader's manifests, locks
// and listeners, and registers it. opts are applied after the shared ones.
func (l *Loader) Attach(o origin.Origin, opts ...resolver.ResolverOption) (*resolver.Resolver, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil origin", data.ErrInvalid)
	}

	base := []resolver.ResolverOption{
		resolver.WithLogger(l.logger.Named(o.Name())),
		resolver.WithManifests(l.manifests),
		resolver.WithLocks(l.locks),
		resolver.WithEvents(l.events),
	}

	r, err := resolver.New(o, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if err := l.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Locators returns the registered locators in order.
func (l *Loader) Locators() []Locator {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.locators)
}

// Locator returns the locator registered as name.
func (l *Loader) Locator(name string) (Locator, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, loc := range l.locators {
		if loc.Name() == name {
			return loc, true
		}
	}
	return nil, false
}

// Start opens every locator that holds connections.
func (l *Loader) Start(ctx context.Context) error {
	failures := &data.Errors{}
	for _, loc := range l.Locators() {
		lc, ok := loc.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Open(ctx); err != nil {
			l.logger.Error("Start: failed to open %s: %v", loc.Name(), err)
			failures.Add(fmt.Errorf("%s: %w", loc.Name(), err))
		}
	}
	return failures.Errors()
}

// Index loads the manifest of every indexing locator and publishes them as
// the new snapshot. A locator that cannot be indexed contributes its
// mirrored manifest, if there is one. A locator without an index file
// contributes nothing and is not an error.
func (l *Loader) Index(ctx context.Context) error {
	var manifests []*manifest.Manifest
	failures := &data.Errors{}

	for _, loc := range l.Locators() {
		indexer, ok := loc.(Indexer)
		if !ok {
			continue
		}

		m, err := l.index(ctx, indexer)
		if err != nil {
			failures.Add(fmt.Errorf("%s: %w", loc.Name(), err))
			continue
		}
		if m == nil {
			continue
		}

		metrics.SetManifestEntries(m.Origin(), m.Len())
		manifests = append(manifests, m)
	}

	set := manifest.NewSet(manifests...)
	l.manifests.Publish(set)
	l.logger.Info("Index: published %d manifests", set.Len())

	return failures.Errors()
}

// Reindex replaces the manifest snapshot. Resolutions in progress keep the
// snapshot they started with.
func (l *Loader) Reindex(ctx context.Context) error {
	l.logger.Debug("Reindex: rebuilding manifests of %d locators", len(l.Locators()))
	return l.Index(ctx)
}

func (l *Loader) index(ctx context.Context, indexer Indexer) (*manifest.Manifest, error) {
	m, err := indexer.Index(ctx)
	if err == nil {
		if l.mirror != nil {
			if err := l.mirror.Save(ctx, m); err != nil {
				l.logger.Warn("Index: failed to mirror %s: %v", m.Origin(), err)
			}
		}
		return m, nil
	}

	// An origin without index file is simply not authoritative. An
	// unreachable one also reports ErrNotFound, but keeps the cause.
	if errors.Is(err, data.ErrNotFound) && !errors.Is(err, data.ErrOriginFailed) {
		l.logger.Debug("Index: %s publishes no manifest", indexer.OriginID())
		return nil, nil
	}

	if l.mirror == nil {
		return nil, err
	}

	mirrored, merr := l.mirror.Load(ctx, indexer.OriginID())
	if merr != nil {
		l.logger.Error("Index: %s failed and has no mirror: %v", indexer.OriginID(), err)
		return nil, err
	}

	l.logger.Warn("Index: %s failed, using mirrored manifest: %v", indexer.OriginID(), err)
	return mirrored, nil
}

// Snapshot returns the current manifest set.
func (l *Loader) Snapshot() *manifest.Set {
	return l.manifests.Snapshot()
}

func (l *Loader) Lookup(name string) (manifest.Entry, bool) {
	key, ok := data.CleanName(name)
	if !ok {
		return manifest.Entry{}, false
	}
	return l.Snapshot().Lookup(key)
}

func (l *Loader) Has(name string) bool {
	_, ok := l.Lookup(name)
	return ok
}

// Find returns the entries whose name fully matches pattern, sorted by name.
func (l *Loader) Find(pattern string) ([]manifest.Entry, error) {
	return l.Snapshot().Find(pattern)
}

func (l *Loader) FindNames(pattern string) ([]string, error) {
	return l.Snapshot().FindNames(pattern)
}

// Open resolves name against every locator in order. The first locator that
// has the asset supplies it; data.ErrNotFound is returned when none has.
func (l *Loader) Open(ctx context.Context, name string) (data.Stream, error) {
	key, ok := data.CleanName(name)
	if !ok {
		return nil, errs.InvalidKey(nil, name)
	}

	ctx = lock.EnsureOwner(ctx)
	l.events.Requested(key)

	for _, loc := range l.Locators() {
		stream, err := loc.Locate(ctx, key)
		if err == nil {
			l.logger.Debug("Open: %s supplied by %s", key, loc.Name())
			l.events.Supplied(key)
			return stream, nil
		}
		if !errors.Is(err, data.ErrNotFound) {
			return nil, err
		}
	}

	l.logger.Debug("Open: %s not found in %d locators", key, len(l.Locators()))
	return nil, errs.AssetNotFound(nil, key)
}

func (l *Loader) AddListener(listener event.Listener) {
	l.events.Add(listener)
}

func (l *Loader) RemoveListener(listener event.Listener) bool {
	return l.events.Remove(listener)
}

// Close closes every locator and the manifest mirror.
func (l *Loader) Close(ctx context.Context) error {
	failures := &data.Errors{}
	for _, loc := range l.Locators() {
		if lc, ok := loc.(Lifecycle); ok {
			if err := lc.Close(ctx); err != nil {
				failures.Add(fmt.Errorf("%s: %w", loc.Name(), err))
			}
		}
	}

	if l.mirror != nil {
		failures.Add(l.mirror.Close())
	}

	return failures.Errors()
}
