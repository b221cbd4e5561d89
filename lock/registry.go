package lock

import (
	"context"
	"sync"
	"time"

	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/metrics"
)

// Registry hands out one exclusive, reentrant lock per key. Waiters are
// served in arrival order. An entry lives only while it has outstanding
// acquires, so the registry does not grow with the number of keys ever seen.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats

	logger *log.Logger
}

type entry struct {
	owner string
	holds int
	// refs counts outstanding acquires: holds of the owner plus queued waiters.
	refs    int
	waiters []*waiter
}

type waiter struct {
	owner string
	ready chan struct{}
}

// Stats are counters over the registry's lifetime.
type Stats struct {
	Acquisitions uint64
	Contended    uint64
	PeakWaiters  int
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Acquire blocks until the owner carried by ctx holds key. A cancelled ctx
// removes the caller from the queue and returns ctx.Err().
func (r *Registry) Acquire(ctx context.Context, key string) error {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		return errs.MissingOwner(key)
	}

	r.mu.Lock()
	e, exists := r.entries[key]
	if !exists {
		e = &entry{}
		r.entries[key] = e
	}

	e.refs++
	r.stats.Acquisitions++

	if e.owner == "" || e.owner == owner {
		e.owner = owner
		e.holds++
		r.mu.Unlock()
		return nil
	}

	w := &waiter{
		owner: owner,
		ready: make(chan struct{}),
	}
	e.waiters = append(e.waiters, w)
	r.stats.Contended++
	if len(e.waiters) > r.stats.PeakWaiters {
		r.stats.PeakWaiters = len(e.waiters)
	}
	holder := e.owner
	r.mu.Unlock()

	r.logger.Debug("Acquire: %s waits for %s held by %s", owner, key, holder)

	start := time.Now()
	select {
	case <-w.ready:
		metrics.RecordLockWait(time.Since(start))
		return nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	select {
	case <-w.ready:
		// Handed over while the context was being cancelled.
		r.mu.Unlock()
		if err := r.release(key, owner); err != nil {
			return err
		}
		return ctx.Err()
	default:
	}

	for i, queued := range e.waiters {
		if queued == w {
			e.waiters = append(e.waiters[:i:i], e.waiters[i+1:]...)
			break
		}
	}
	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	return ctx.Err()
}

// Release gives up one hold of key by the owner carried by ctx. When the last
// hold is released the next waiter becomes the owner.
func (r *Registry) Release(ctx context.Context, key string) error {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		return errs.MissingOwner(key)
	}

	return r.release(key, owner)
}

func (r *Registry) release(key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[key]
	if !exists || e.owner != owner || e.holds == 0 {
		r.logger.Warn("Release: %s released %s without holding it", owner, key)
		return errs.LockMisused(key, owner)
	}

	e.holds--
	e.refs--
	if e.holds > 0 {
		return nil
	}

	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		e.owner = next.owner
		e.holds = 1
		close(next.ready)
	} else {
		e.owner = ""
	}

	if e.refs == 0 {
		delete(r.entries, key)
	}

	return nil
}

// Holder returns the current owner of key and its hold count.
func (r *Registry) Holder(key string) (string, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[key]
	if !exists || e.owner == "" {
		return "", 0, false
	}
	return e.owner, e.holds, true
}

// Len returns the number of keys with outstanding acquires.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}
